package shrine

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/nostrshrine/shrine/nostr"
)

func DefaultSettings() *SettingsContent {
	return &SettingsContent{
		OmikujiCooldownMinutes: DefaultCooldownMinutes,
		Relays:                 []string{DefaultRelayUrl},
	}
}

// Settings fetches the replaceable app-settings event. Absence or a
// malformed payload degrades to defaults, never an error.
type Settings struct {
	client       *nostr.CachedClient
	fetchTimeout time.Duration
}

func NewSettings(client *nostr.CachedClient) *Settings {
	return &Settings{
		client:       client,
		fetchTimeout: nostr.DefaultFetchTimeout,
	}
}

func (self *Settings) Fetch(ctx context.Context) *SettingsContent {
	filters := []*nostr.Filter{
		{
			Kinds: []int{KindAppSettings},
			DTags: []string{DTagAppSettings},
			Limit: 1,
		},
	}
	events := fetchMerged(ctx, self.client, filters, self.fetchTimeout)

	latest := latestEvent(events)
	if latest == nil {
		return DefaultSettings()
	}
	content, err := ParseContent(KindAppSettings, latest.Content)
	if err != nil {
		glog.Infof("[settings]parse error = %s\n", err)
		return DefaultSettings()
	}
	settings := content.(*SettingsContent)
	if settings.OmikujiCooldownMinutes <= 0 {
		settings.OmikujiCooldownMinutes = DefaultCooldownMinutes
	}
	if len(settings.Relays) == 0 {
		settings.Relays = []string{DefaultRelayUrl}
	}
	return settings
}

// Publish writes a new app-settings event, an admin operation.
func (self *Settings) Publish(signer nostr.Signer, settings *SettingsContent) (*nostr.Event, error) {
	event, err := CreateAppSettingsEvent(signer, settings)
	if err != nil {
		return nil, err
	}
	if err := self.client.Pool().PublishToAll(event); err != nil {
		return nil, err
	}
	return event, nil
}
