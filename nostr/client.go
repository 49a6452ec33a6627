package nostr

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"golang.org/x/exp/maps"
)

// The network phase runs for a fixed window instead of waiting for
// per-relay end-of-stored-events signals. The pool is an opaque fan-out;
// the small latency tax buys much simpler multi-relay reconciliation.
const DefaultFetchTimeout = 3 * time.Second

type EventSource string

const (
	EventSourceCache EventSource = "cache"
	EventSourceRelay EventSource = "relay"
)

type FetchOptions struct {
	// SkipCache bypasses the cache phase; all results surface through the
	// network phase.
	SkipCache bool
	Timeout   time.Duration
	OnCache   func(events []*Event)
	OnNetwork func(events []*Event)
}

// CachedClient reconciles the durable store with the relay pool.
//
// Fetch serves a fast snapshot from the store, concurrently queries the
// network, warms the store with everything observed, and delivers only the
// net-new events through the second callback. A caller observing both
// callbacks never sees the same id twice.
type CachedClient struct {
	ctx   context.Context
	pool  *Pool
	store *EventStore
}

func NewCachedClient(ctx context.Context, pool *Pool, store *EventStore) *CachedClient {
	return &CachedClient{
		ctx:   ctx,
		pool:  pool,
		store: store,
	}
}

// Fetch returns the cache snapshot immediately. The network phase runs in
// the background until the timeout, then OnNetwork is invoked with the
// deduplicated net-new events, if any. Cancelling ctx tears the network
// phase down early without invoking OnNetwork; cache warming writes
// already performed are kept.
func (self *CachedClient) Fetch(ctx context.Context, filters []*Filter, options *FetchOptions) []*Event {
	if options == nil {
		options = &FetchOptions{}
	}
	timeout := options.Timeout
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}

	cachedEvents := []*Event{}
	seenIds := map[string]bool{}
	if !options.SkipCache {
		// a broken store degrades to a cold start, not an error
		var err error
		cachedEvents, err = self.queryCache(filters)
		if err != nil {
			glog.Infof("[cached]cache read error = %s\n", err)
			cachedEvents = []*Event{}
		}
		for _, event := range cachedEvents {
			seenIds[event.Id] = true
		}
		if 0 < len(cachedEvents) {
			glog.V(2).Infof("[cached]%d events from cache\n", len(cachedEvents))
			if options.OnCache != nil {
				options.OnCache(cachedEvents)
			}
		}
	}

	subscriptionId := fmt.Sprintf("cached-%s", ulid.Make())
	mutex := sync.Mutex{}
	networkEvents := map[string]*Event{}

	self.pool.SubscribeToAll(subscriptionId, filters, func(event *Event) {
		mutex.Lock()
		networkEvents[event.Id] = event
		mutex.Unlock()
		// the store converges to the network's full knowledge regardless
		// of what this caller already saw
		if err := self.store.Put(event); err != nil {
			glog.Infof("[cached]cache write error = %s\n", err)
		}
	})

	go func() {
		select {
		case <-ctx.Done():
			self.pool.UnsubscribeFromAll(subscriptionId)
			return
		case <-self.ctx.Done():
			self.pool.UnsubscribeFromAll(subscriptionId)
			return
		case <-time.After(timeout):
		}
		self.pool.UnsubscribeFromAll(subscriptionId)

		mutex.Lock()
		received := maps.Values(networkEvents)
		mutex.Unlock()

		newEvents := []*Event{}
		for _, event := range received {
			if !seenIds[event.Id] {
				newEvents = append(newEvents, event)
			}
		}
		sortByCreatedAtDesc(newEvents)

		if 0 < len(newEvents) {
			glog.V(2).Infof(
				"[cached]%d new events from relays (%d duplicates filtered)\n",
				len(newEvents),
				len(received)-len(newEvents),
			)
			if options.OnNetwork != nil {
				options.OnNetwork(newEvents)
			}
		}
	}()

	return cachedEvents
}

// SubscribeLive emits the cache snapshot immediately tagged cache, then
// every network event tagged relay for the subscription's lifetime.
// The subscription ends when ctx is cancelled or Unsubscribe is called.
func (self *CachedClient) SubscribeLive(ctx context.Context, filters []*Filter, onEvent func(*Event, EventSource)) string {
	subscriptionId := fmt.Sprintf("live-%s", ulid.Make())

	cachedEvents, err := self.queryCache(filters)
	if err != nil {
		glog.Infof("[cached]cache read error = %s\n", err)
		cachedEvents = []*Event{}
	}
	for _, event := range cachedEvents {
		onEvent(event, EventSourceCache)
	}

	self.pool.SubscribeToAll(subscriptionId, filters, func(event *Event) {
		if err := self.store.Put(event); err != nil {
			glog.Infof("[cached]cache write error = %s\n", err)
		}
		onEvent(event, EventSourceRelay)
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-self.ctx.Done():
		}
		self.pool.UnsubscribeFromAll(subscriptionId)
	}()

	return subscriptionId
}

func (self *CachedClient) Unsubscribe(subscriptionId string) {
	self.pool.UnsubscribeFromAll(subscriptionId)
}

func (self *CachedClient) Store() *EventStore {
	return self.store
}

func (self *CachedClient) Pool() *Pool {
	return self.pool
}

// queryCache evaluates each filter against the store via the narrowest
// index, takes the union deduplicated by id, and applies the first limit.
func (self *CachedClient) queryCache(filters []*Filter) ([]*Event, error) {
	unique := map[string]*Event{}
	for _, filter := range filters {
		candidates, err := self.cacheCandidates(filter)
		if err != nil {
			return nil, err
		}
		for _, event := range candidates {
			if filter.Matches(event) {
				unique[event.Id] = event
			}
		}
	}

	events := maps.Values(unique)
	sortByCreatedAtDesc(events)

	for _, filter := range filters {
		if 0 < filter.Limit && filter.Limit < len(events) {
			events = events[:filter.Limit]
		}
		break
	}
	return events, nil
}

func (self *CachedClient) cacheCandidates(filter *Filter) ([]*Event, error) {
	events := []*Event{}
	switch {
	case 0 < len(filter.Kinds) && 0 < len(filter.Authors):
		for _, kind := range filter.Kinds {
			for _, author := range filter.Authors {
				matched, err := self.store.GetByKindAndAuthor(kind, author)
				if err != nil {
					return nil, err
				}
				events = append(events, matched...)
			}
		}
	case 0 < len(filter.Kinds):
		for _, kind := range filter.Kinds {
			matched, err := self.store.GetByKind(kind)
			if err != nil {
				return nil, err
			}
			events = append(events, matched...)
		}
	case 0 < len(filter.Authors):
		for _, author := range filter.Authors {
			matched, err := self.store.GetByAuthor(author)
			if err != nil {
				return nil, err
			}
			events = append(events, matched...)
		}
	}
	return events, nil
}

func sortByCreatedAtDesc(events []*Event) {
	sort.Slice(events, func(i int, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[j].CreatedAt < events[i].CreatedAt
		}
		return events[i].Id < events[j].Id
	})
}
