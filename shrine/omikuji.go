package shrine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/nostrshrine/shrine/nostr"
)

const lastDrawnConfigKey = "omikuji_last_drawn"

const DefaultCooldownMinutes = 60

var ErrNoOmikujiData = errors.New("no omikuji data available")

type OmikujiSettings struct {
	CooldownMinutes int
	FetchLimit      int
	FetchTimeout    time.Duration
}

func DefaultOmikujiSettings() *OmikujiSettings {
	return &OmikujiSettings{
		CooldownMinutes: DefaultCooldownMinutes,
		FetchLimit:      100,
		FetchTimeout:    nostr.DefaultFetchTimeout,
	}
}

// Omikuji draws fortunes from the published datum set, with a persisted
// cooldown between draws.
type Omikuji struct {
	client   *nostr.CachedClient
	settings *OmikujiSettings
}

func NewOmikujiWithDefaults(client *nostr.CachedClient) *Omikuji {
	return NewOmikuji(client, DefaultOmikujiSettings())
}

func NewOmikuji(client *nostr.CachedClient, settings *OmikujiSettings) *Omikuji {
	return &Omikuji{
		client:   client,
		settings: settings,
	}
}

// FetchList returns the parsed fortune data. Events with malformed content
// are logged and excluded without aborting the batch.
func (self *Omikuji) FetchList(ctx context.Context) ([]*OmikujiResult, error) {
	filters := []*nostr.Filter{
		{
			Kinds: []int{KindOmikujiData},
			Limit: self.settings.FetchLimit,
		},
	}
	events := fetchMerged(ctx, self.client, filters, self.settings.FetchTimeout)

	results := []*OmikujiResult{}
	for _, event := range events {
		content, err := ParseContent(KindOmikujiData, event.Content)
		if err != nil {
			glog.Infof("[omikuji]skip event %s = %s\n", event.Id, err)
			continue
		}
		results = append(results, content.(*OmikujiResult))
	}
	return results, nil
}

// CanDraw reports whether the cooldown has elapsed and the remaining wait
// otherwise.
func (self *Omikuji) CanDraw() (bool, time.Duration) {
	lastDrawn := self.lastDrawnTime()
	if lastDrawn.IsZero() {
		return true, 0
	}
	cooldown := time.Duration(self.settings.CooldownMinutes) * time.Minute
	elapsed := time.Since(lastDrawn)
	if cooldown <= elapsed {
		return true, 0
	}
	return false, cooldown - elapsed
}

// Draw picks a random fortune and records the draw time.
func (self *Omikuji) Draw(ctx context.Context) (*OmikujiResult, error) {
	canDraw, remaining := self.CanDraw()
	if !canDraw {
		return nil, fmt.Errorf("next draw available in %s", remaining.Round(time.Minute))
	}

	results, err := self.FetchList(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoOmikujiData
	}

	selected := results[rand.Intn(len(results))]

	now := time.Now().UnixMilli()
	if err := self.client.Store().SetConfig(lastDrawnConfigKey, strconv.FormatInt(now, 10)); err != nil {
		glog.Infof("[omikuji]record draw error = %s\n", err)
	}
	return selected, nil
}

// PublishResult shares a drawn fortune to all connected relays.
func (self *Omikuji) PublishResult(signer nostr.Signer, result *OmikujiResult) (*nostr.Event, error) {
	event, err := CreateOmikujiPostEvent(signer, result)
	if err != nil {
		return nil, err
	}
	if err := self.client.Pool().PublishToAll(event); err != nil {
		return nil, err
	}
	return event, nil
}

// PublishData publishes a fortune datum, an admin operation.
func (self *Omikuji) PublishData(signer nostr.Signer, omikujiId string, result *OmikujiResult) (*nostr.Event, error) {
	event, err := CreateOmikujiDataEvent(signer, omikujiId, result)
	if err != nil {
		return nil, err
	}
	if err := self.client.Pool().PublishToAll(event); err != nil {
		return nil, err
	}
	return event, nil
}

func (self *Omikuji) lastDrawnTime() time.Time {
	value, err := self.client.Store().GetConfig(lastDrawnConfigKey)
	if err != nil || value == "" {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}
