package shrine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/nostrshrine/shrine/nostr"
)

const DefaultAdminResolveTimeout = 3 * time.Second

// Admins resolves the designated admin set from the replaceable admin-list
// event, falling back to a configured list when the network holds none.
type Admins struct {
	pool           *nostr.Pool
	fallback       []string
	resolveTimeout time.Duration
}

func NewAdmins(pool *nostr.Pool, fallback []string) *Admins {
	return &Admins{
		pool:           pool,
		fallback:       fallback,
		resolveTimeout: DefaultAdminResolveTimeout,
	}
}

// Resolve listens for the admin-list event for a fixed window, keeps the
// latest by signer timestamp, and returns the hex-normalized admin keys.
func (self *Admins) Resolve(ctx context.Context) ([]string, error) {
	subscriptionId := fmt.Sprintf("admin-list-%s", ulid.Make())
	filters := []*nostr.Filter{
		{
			Kinds: []int{KindAdminList},
			DTags: []string{DTagAdminList},
			Limit: 1,
		},
	}

	latest := make(chan *nostr.Event, 16)
	self.pool.SubscribeToAll(subscriptionId, filters, func(event *nostr.Event) {
		select {
		case latest <- event:
		default:
		}
	})

	select {
	case <-ctx.Done():
	case <-time.After(self.resolveTimeout):
	}
	self.pool.UnsubscribeFromAll(subscriptionId)

	var latestEvent *nostr.Event
	for {
		done := false
		select {
		case event := <-latest:
			if latestEvent == nil || latestEvent.CreatedAt < event.CreatedAt {
				latestEvent = event
			}
		default:
			done = true
		}
		if done {
			break
		}
	}

	admins := self.fallback
	if latestEvent != nil {
		content := &AdminListContent{}
		if err := json.Unmarshal([]byte(latestEvent.Content), content); err != nil {
			glog.Infof("[admin]parse admin list error = %s\n", err)
		} else if 0 < len(content.Admins) {
			admins = content.Admins
		}
	}
	return normalizeAdminKeys(admins), nil
}

// IsAdmin checks a pubkey against the resolved admin set.
func (self *Admins) IsAdmin(ctx context.Context, pubkey string) (bool, error) {
	admins, err := self.Resolve(ctx)
	if err != nil {
		return false, err
	}
	pubkey = strings.ToLower(pubkey)
	for _, admin := range admins {
		if admin == pubkey {
			return true, nil
		}
	}
	return false, nil
}

// PublishList publishes a new admin list, an admin operation.
func (self *Admins) PublishList(signer nostr.Signer, adminPubkeys []string) (*nostr.Event, error) {
	event, err := CreateAdminListEvent(signer, adminPubkeys)
	if err != nil {
		return nil, err
	}
	if err := self.pool.PublishToAll(event); err != nil {
		return nil, err
	}
	return event, nil
}

// normalizeAdminKeys converts npub entries to lowercase hex. Entries that
// fail to decode are kept as-is rather than dropped.
func normalizeAdminKeys(admins []string) []string {
	normalized := []string{}
	for _, admin := range admins {
		admin = strings.TrimSpace(admin)
		if admin == "" {
			continue
		}
		if strings.HasPrefix(admin, "npub1") {
			if pubkey, err := nostr.DecodeNpub(admin); err == nil {
				normalized = append(normalized, pubkey)
				continue
			}
		}
		normalized = append(normalized, strings.ToLower(admin))
	}
	return normalized
}
