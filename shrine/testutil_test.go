package shrine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/nostrshrine/shrine/nostr"
)

// Tests run against a seeded local store and an empty pool: the network
// phase of each fetch ends with nothing new, so results come from the
// cache alone.

func newTestClient(t *testing.T) *nostr.CachedClient {
	t.Helper()
	db, err := nostr.OpenDb(filepath.Join(t.TempDir(), "test.db"))
	assert.Equal(t, err, nil)
	t.Cleanup(func() {
		db.Close()
	})
	ctx := context.Background()
	pool := nostr.NewPoolWithDefaults(ctx)
	return nostr.NewCachedClient(ctx, pool, nostr.NewEventStore(db))
}

func newTestSigner(t *testing.T) *nostr.LocalSigner {
	t.Helper()
	signer, err := nostr.GenerateLocalSigner()
	assert.Equal(t, err, nil)
	return signer
}

// putRawEvent stores an unsigned event with explicit fields, for seeding
// cache states the builders cannot produce (fixed timestamps, malformed
// payloads).
func putRawEvent(t *testing.T, store *nostr.EventStore, kind int, pubkey string, createdAt int64, tags [][]string, content string) *nostr.Event {
	t.Helper()
	if tags == nil {
		tags = [][]string{}
	}
	event := &nostr.Event{
		Pubkey:    pubkey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	id, err := event.ComputeId()
	assert.Equal(t, err, nil)
	event.Id = id
	assert.Equal(t, store.Put(event), nil)
	return event
}
