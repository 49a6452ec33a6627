package nostr

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestPoolAddRelayIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(ctx, testRelaySettings())
	relayA := pool.AddRelay("ws://127.0.0.1:1")
	relayB := pool.AddRelay("ws://127.0.0.1:1")
	assert.Equal(t, relayA == relayB, true)
	assert.Equal(t, len(pool.Relays()), 1)

	pool.AddRelay("ws://127.0.0.1:2")
	assert.Equal(t, len(pool.Relays()), 2)

	pool.RemoveRelay("ws://127.0.0.1:2")
	assert.Equal(t, len(pool.Relays()), 1)
}

func TestPoolConnectAllPartialFailure(t *testing.T) {
	serverA := newTestRelayServer(t, nil)
	serverB := newTestRelayServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(ctx, testRelaySettings())
	pool.AddRelay(serverA.Url())
	pool.AddRelay(serverB.Url())
	// nothing listens here; the dial fails fast
	failed := pool.AddRelay("ws://127.0.0.1:1")

	pool.ConnectAll()
	defer pool.DisconnectAll()

	assert.Equal(t, pool.AnyConnected(), true)
	assert.Equal(t, failed.Status(), RelayStatusError)

	connected := 0
	for _, relay := range pool.Relays() {
		if relay.Status() == RelayStatusConnected {
			connected += 1
		}
	}
	assert.Equal(t, connected, 2)

	// publish reaches every connected relay despite the failed one
	event := testEvent(1, "fan out", 100)
	assert.Equal(t, pool.PublishToAll(event), nil)

	waitFor(t, 2*time.Second, func() bool {
		return 0 < len(serverA.publishedEvents()) && 0 < len(serverB.publishedEvents())
	})
	assert.Equal(t, serverA.publishedEvents()[0].Id, event.Id)
	assert.Equal(t, serverB.publishedEvents()[0].Id, event.Id)
}

func TestPoolPublishNoRelays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(ctx, testRelaySettings())
	err := pool.PublishToAll(testEvent(1, "nowhere", 100))
	assert.NotEqual(t, err, nil)
}

func TestPoolSubscribeToAll(t *testing.T) {
	eventA := testEvent(3081, "from a", 100)
	eventB := testEvent(3081, "from b", 200)
	serverA := newTestRelayServer(t, []*Event{eventA})
	serverB := newTestRelayServer(t, []*Event{eventB})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(ctx, testRelaySettings())
	pool.AddRelay(serverA.Url())
	pool.AddRelay(serverB.Url())
	pool.ConnectAll()
	defer pool.DisconnectAll()

	received := make(chan *Event, 16)
	pool.SubscribeToAll(
		"sub-1",
		[]*Filter{
			{
				Kinds: []int{3081},
			},
		},
		func(event *Event) {
			received <- event
		},
	)

	seenIds := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-received:
			seenIds[event.Id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for events")
		}
	}
	assert.Equal(t, seenIds[eventA.Id], true)
	assert.Equal(t, seenIds[eventB.Id], true)

	pool.UnsubscribeFromAll("sub-1")
}

func TestPoolAnyConnected(t *testing.T) {
	server := newTestRelayServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewPool(ctx, testRelaySettings())
	assert.Equal(t, pool.AnyConnected(), false)

	pool.AddRelay(server.Url())
	assert.Equal(t, pool.AnyConnected(), false)

	pool.ConnectAll()
	assert.Equal(t, pool.AnyConnected(), true)

	pool.DisconnectAll()
	assert.Equal(t, pool.AnyConnected(), false)
}
