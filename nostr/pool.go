package nostr

import (
	"context"
	"errors"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

// Pool owns one Relay per endpoint url and fans publish/subscribe
// operations out to every connected relay. The same logical event arriving
// from multiple relays is expected; deduplication is the consumer's job.
type Pool struct {
	ctx      context.Context
	settings *RelaySettings

	mutex  sync.Mutex
	relays map[string]*Relay
}

func NewPoolWithDefaults(ctx context.Context) *Pool {
	return NewPool(ctx, DefaultRelaySettings())
}

func NewPool(ctx context.Context, settings *RelaySettings) *Pool {
	return &Pool{
		ctx:      ctx,
		settings: settings,
		relays:   map[string]*Relay{},
	}
}

// AddRelay is idempotent. A second add of the same url observes the relay
// the first created.
func (self *Pool) AddRelay(url string) *Relay {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if relay, ok := self.relays[url]; ok {
		return relay
	}
	relay := NewRelay(self.ctx, url, self.settings)
	self.relays[url] = relay
	return relay
}

func (self *Pool) RemoveRelay(url string) {
	self.mutex.Lock()
	relay := self.relays[url]
	delete(self.relays, url)
	self.mutex.Unlock()

	if relay != nil {
		relay.Disconnect()
	}
}

func (self *Pool) Relays() []*Relay {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return maps.Values(self.relays)
}

// ConnectAll initiates all connections concurrently. A single relay
// failing does not prevent the others from connecting and does not fail
// the call.
func (self *Pool) ConnectAll() {
	relays := self.Relays()

	wg := sync.WaitGroup{}
	for _, relay := range relays {
		wg.Add(1)
		go func(relay *Relay) {
			defer wg.Done()
			if err := relay.Connect(); err != nil {
				glog.Infof("[pool]connect %s error = %s\n", relay.Url(), err)
			}
		}(relay)
	}
	wg.Wait()
}

func (self *Pool) DisconnectAll() {
	for _, relay := range self.Relays() {
		relay.Disconnect()
	}
}

// PublishToAll sends to every connected relay; relays not connected are
// silently skipped. Publishing with no relay ever added is misuse.
func (self *Pool) PublishToAll(event *Event) error {
	relays := self.Relays()
	if len(relays) == 0 {
		return errors.New("no relays added")
	}

	for _, relay := range relays {
		if relay.Status() != RelayStatusConnected {
			continue
		}
		if err := relay.Publish(event); err != nil {
			glog.Infof("[pool]publish %s error = %s\n", relay.Url(), err)
		}
	}
	return nil
}

// SubscribeToAll registers the same subscription id and callback on every
// connected relay.
func (self *Pool) SubscribeToAll(subscriptionId string, filters []*Filter, onEvent func(*Event)) {
	for _, relay := range self.Relays() {
		if relay.Status() != RelayStatusConnected {
			continue
		}
		if err := relay.Subscribe(subscriptionId, filters, onEvent); err != nil {
			glog.Infof("[pool]subscribe %s error = %s\n", relay.Url(), err)
		}
	}
}

func (self *Pool) UnsubscribeFromAll(subscriptionId string) {
	for _, relay := range self.Relays() {
		relay.Unsubscribe(subscriptionId)
	}
}

// AnyConnected recomputes status on each call.
func (self *Pool) AnyConnected() bool {
	for _, relay := range self.Relays() {
		if relay.Status() == RelayStatusConnected {
			return true
		}
	}
	return false
}
