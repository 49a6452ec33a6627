package shrine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/nostrshrine/shrine/nostr"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	db, err := nostr.OpenDb(filepath.Join(t.TempDir(), "test.db"))
	assert.Equal(t, err, nil)
	t.Cleanup(func() {
		db.Close()
	})
	ctx := context.Background()
	pool := nostr.NewPoolWithDefaults(ctx)
	client := nostr.NewCachedClient(ctx, pool, nostr.NewEventStore(db))
	return NewHistory(client, nostr.NewProfileStore(db), &HistorySettings{
		PageSize:             DefaultHistoryPageSize,
		FetchTimeout:         50 * time.Millisecond,
		ProfileListenTimeout: 10 * time.Millisecond,
	})
}

func TestHistoryFetchSortedAndIsolated(t *testing.T) {
	history := newTestHistory(t)
	pubkey := strings.Repeat("ab", 32)
	store := history.client.Store()

	putRawEvent(t, store, KindShrineVisit, pubkey, 100, nil,
		`{"shrine_name":"NostrShrine","message":"first","visited_at":100000}`)
	putRawEvent(t, store, KindShrineVisit, pubkey, 300, nil,
		`{"shrine_name":"NostrShrine","message":"third","visited_at":300000}`)
	putRawEvent(t, store, KindShrineVisit, pubkey, 200, nil, `not json`)

	records, err := history.Fetch(context.Background(), 0)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 2)
	assert.Equal(t, records[0].Message, "third")
	assert.Equal(t, records[1].Message, "first")
}

func TestHistoryFetchDefaultsMissingFields(t *testing.T) {
	history := newTestHistory(t)
	pubkey := strings.Repeat("ab", 32)

	// no shrine name and no visited_at in the payload
	putRawEvent(t, history.client.Store(), KindShrineVisit, pubkey, 100, nil, `{"message":"bare"}`)

	records, err := history.Fetch(context.Background(), 0)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0].ShrineName, DefaultShrineName)
	assert.Equal(t, records[0].VisitedAt, int64(100*1000))
}

func TestHistoryPaging(t *testing.T) {
	history := newTestHistory(t)
	pubkey := strings.Repeat("ab", 32)
	store := history.client.Store()

	putRawEvent(t, store, KindShrineVisit, pubkey, 100, nil, `{"message":"old"}`)
	putRawEvent(t, store, KindShrineVisit, pubkey, 200, nil, `{"message":"middle"}`)
	putRawEvent(t, store, KindShrineVisit, pubkey, 300, nil, `{"message":"new"}`)

	records, err := history.Fetch(context.Background(), 199)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0].Message, "old")
}

func TestHistoryProfileEnrichment(t *testing.T) {
	history := newTestHistory(t)
	pubkeyA := strings.Repeat("aa", 32)
	pubkeyB := strings.Repeat("bb", 32)
	store := history.client.Store()

	putRawEvent(t, store, KindShrineVisit, pubkeyA, 100, nil, `{"message":"with profile"}`)
	putRawEvent(t, store, KindShrineVisit, pubkeyB, 200, nil, `{"message":"without profile"}`)

	profileEvent := &nostr.Event{
		Pubkey:    pubkeyA,
		CreatedAt: 50,
		Kind:      KindProfile,
		Tags:      [][]string{},
		Content:   `{"name":"alice"}`,
	}
	id, err := profileEvent.ComputeId()
	assert.Equal(t, err, nil)
	profileEvent.Id = id
	assert.Equal(t, history.profiles.Upsert(profileEvent), nil)

	records, err := history.Fetch(context.Background(), 0)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 2)
	assert.Equal(t, records[0].Pubkey, pubkeyB)
	assert.Equal(t, records[0].Profile, nil)
	assert.Equal(t, records[1].Pubkey, pubkeyA)
	assert.Equal(t, records[1].Profile.Name, "alice")
}
