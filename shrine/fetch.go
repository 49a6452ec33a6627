package shrine

import (
	"context"
	"time"

	"github.com/nostrshrine/shrine/nostr"
)

// fetchMerged runs one two-phase fetch and blocks until the network window
// closes, returning cache and net-new events merged. The network callback
// is suppressed on an empty result, so the full window is always waited
// out in that case.
func fetchMerged(ctx context.Context, client *nostr.CachedClient, filters []*nostr.Filter, timeout time.Duration) []*nostr.Event {
	if timeout == 0 {
		timeout = nostr.DefaultFetchTimeout
	}
	networkResult := make(chan []*nostr.Event, 1)
	events := client.Fetch(ctx, filters, &nostr.FetchOptions{
		Timeout: timeout,
		OnNetwork: func(newEvents []*nostr.Event) {
			networkResult <- newEvents
		},
	})
	select {
	case newEvents := <-networkResult:
		events = append(events, newEvents...)
	case <-time.After(timeout + 500*time.Millisecond):
	case <-ctx.Done():
	}
	return events
}

// latestEvent picks the newest event by signer timestamp, the replaceable
// "latest wins" rule applied at read time.
func latestEvent(events []*nostr.Event) *nostr.Event {
	var latest *nostr.Event
	for _, event := range events {
		if latest == nil || latest.CreatedAt < event.CreatedAt {
			latest = event
		}
	}
	return latest
}
