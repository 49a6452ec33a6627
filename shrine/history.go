package shrine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/nostrshrine/shrine/nostr"
)

const DefaultHistoryPageSize = 50

const DefaultProfileListenTimeout = 3 * time.Second

// VisitRecord is one parsed shrine visit, enriched with the visitor's
// profile when one is known.
type VisitRecord struct {
	Id         string
	Pubkey     string
	Timestamp  int64
	ShrineName string
	Message    string
	VisitedAt  int64
	Profile    *nostr.Profile
}

type HistorySettings struct {
	PageSize             int
	FetchTimeout         time.Duration
	ProfileListenTimeout time.Duration
}

func DefaultHistorySettings() *HistorySettings {
	return &HistorySettings{
		PageSize:             DefaultHistoryPageSize,
		FetchTimeout:         nostr.DefaultFetchTimeout,
		ProfileListenTimeout: DefaultProfileListenTimeout,
	}
}

// History is the shared activity feed across all visitors.
type History struct {
	client   *nostr.CachedClient
	profiles *nostr.ProfileStore
	settings *HistorySettings
}

func NewHistoryWithDefaults(client *nostr.CachedClient, profiles *nostr.ProfileStore) *History {
	return NewHistory(client, profiles, DefaultHistorySettings())
}

func NewHistory(client *nostr.CachedClient, profiles *nostr.ProfileStore, settings *HistorySettings) *History {
	return &History{
		client:   client,
		profiles: profiles,
		settings: settings,
	}
}

// Fetch returns one page of visits, newest first. Pass until = 0 for the
// first page; pass the oldest timestamp of the previous page minus one to
// page backwards.
func (self *History) Fetch(ctx context.Context, until int64) ([]*VisitRecord, error) {
	filter := &nostr.Filter{
		Kinds: []int{KindShrineVisit},
		Limit: self.settings.PageSize,
	}
	if 0 < until {
		filter.Until = until
	}
	events := fetchMerged(ctx, self.client, []*nostr.Filter{filter}, self.settings.FetchTimeout)

	records := []*VisitRecord{}
	seenIds := map[string]bool{}
	for _, event := range events {
		if seenIds[event.Id] {
			continue
		}
		seenIds[event.Id] = true
		content, err := ParseContent(KindShrineVisit, event.Content)
		if err != nil {
			glog.Infof("[history]skip event %s = %s\n", event.Id, err)
			continue
		}
		visit := content.(*VisitContent)
		visitedAt := visit.VisitedAt
		if visitedAt == 0 {
			visitedAt = event.CreatedAt * 1000
		}
		shrineName := visit.ShrineName
		if shrineName == "" {
			shrineName = DefaultShrineName
		}
		records = append(records, &VisitRecord{
			Id:         event.Id,
			Pubkey:     event.Pubkey,
			Timestamp:  event.CreatedAt,
			ShrineName: shrineName,
			Message:    visit.Message,
			VisitedAt:  visitedAt,
		})
	}

	self.attachProfiles(ctx, records)

	sort.Slice(records, func(i int, j int) bool {
		return records[j].Timestamp < records[i].Timestamp
	})
	return records, nil
}

// Publish records a visit by the signing user.
func (self *History) Publish(signer nostr.Signer, visit *VisitContent) (*nostr.Event, error) {
	event, err := CreateShrineVisitEvent(signer, visit)
	if err != nil {
		return nil, err
	}
	if err := self.client.Pool().PublishToAll(event); err != nil {
		return nil, err
	}
	return event, nil
}

// attachProfiles enriches records from the profile store and backfills
// missing profiles from the network in a fixed listen window.
func (self *History) attachProfiles(ctx context.Context, records []*VisitRecord) {
	pubkeys := []string{}
	seen := map[string]bool{}
	for _, record := range records {
		if !seen[record.Pubkey] {
			seen[record.Pubkey] = true
			pubkeys = append(pubkeys, record.Pubkey)
		}
	}
	if len(pubkeys) == 0 {
		return
	}

	cached, err := self.profiles.GetMany(pubkeys)
	if err != nil {
		glog.Infof("[history]profile read error = %s\n", err)
		cached = map[string]*nostr.CachedProfile{}
	}

	missing := []string{}
	for _, pubkey := range pubkeys {
		if _, ok := cached[pubkey]; !ok {
			missing = append(missing, pubkey)
		}
	}
	if 0 < len(missing) {
		self.fetchProfiles(ctx, missing)
		if refreshed, err := self.profiles.GetMany(missing); err == nil {
			for pubkey, profile := range refreshed {
				cached[pubkey] = profile
			}
		}
	}

	for _, record := range records {
		if profile, ok := cached[record.Pubkey]; ok {
			record.Profile = profile.Profile
		}
	}
}

func (self *History) fetchProfiles(ctx context.Context, pubkeys []string) {
	subscriptionId := fmt.Sprintf("profiles-%s", ulid.Make())
	filters := []*nostr.Filter{
		{
			Kinds:   []int{KindProfile},
			Authors: pubkeys,
		},
	}
	self.client.Pool().SubscribeToAll(subscriptionId, filters, func(event *nostr.Event) {
		if err := self.profiles.Upsert(event); err != nil {
			glog.Infof("[history]profile write error = %s\n", err)
		}
	})

	select {
	case <-ctx.Done():
	case <-time.After(self.settings.ProfileListenTimeout):
	}
	self.client.Pool().UnsubscribeFromAll(subscriptionId)
}
