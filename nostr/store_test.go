package nostr

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func openTestStore(t *testing.T) *EventStore {
	t.Helper()
	db, err := OpenDb(filepath.Join(t.TempDir(), "test.db"))
	assert.Equal(t, err, nil)
	t.Cleanup(func() {
		db.Close()
	})
	return NewEventStore(db)
}

func TestStorePutIdempotent(t *testing.T) {
	store := openTestStore(t)
	event := testEvent(1, "note", 1700000000)

	assert.Equal(t, store.Put(event), nil)
	assert.Equal(t, store.Put(event), nil)

	count, err := store.Count()
	assert.Equal(t, err, nil)
	assert.Equal(t, count, 1)

	stored, err := store.GetById(event.Id)
	assert.Equal(t, err, nil)
	assert.Equal(t, stored.Id, event.Id)
	assert.Equal(t, stored.Content, "note")
	assert.Equal(t, stored.CreatedAt, event.CreatedAt)
}

func TestStoreGetByIdAbsent(t *testing.T) {
	store := openTestStore(t)
	stored, err := store.GetById("missing")
	assert.Equal(t, err, nil)
	assert.Equal(t, stored, nil)
}

func TestStoreQueries(t *testing.T) {
	store := openTestStore(t)
	authorA := strings.Repeat("aa", 32)
	authorB := strings.Repeat("bb", 32)

	assert.Equal(t, store.Put(testEventWithAuthor(1, authorA, "one", 100)), nil)
	assert.Equal(t, store.Put(testEventWithAuthor(1, authorB, "two", 200)), nil)
	assert.Equal(t, store.Put(testEventWithAuthor(3081, authorA, "visit", 300)), nil)

	byKind, err := store.GetByKind(1)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(byKind), 2)

	byAuthor, err := store.GetByAuthor(authorA)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(byAuthor), 2)

	both, err := store.GetByKindAndAuthor(1, authorA)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(both), 1)
	assert.Equal(t, both[0].Content, "one")

	none, err := store.GetByKind(999)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(none), 0)
}

func TestStorePurgeByKind(t *testing.T) {
	store := openTestStore(t)
	assert.Equal(t, store.Put(testEvent(1, "note", 100)), nil)
	assert.Equal(t, store.Put(testEvent(3081, "visit", 200)), nil)

	assert.Equal(t, store.PurgeByKind(3081), nil)

	visits, err := store.GetByKind(3081)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(visits), 0)

	count, err := store.Count()
	assert.Equal(t, err, nil)
	assert.Equal(t, count, 1)
}

func TestStorePurgeOlderThan(t *testing.T) {
	store := openTestStore(t)
	assert.Equal(t, store.Put(testEvent(1, "fresh", 100)), nil)

	// everything was cached just now, so a one day sweep keeps it
	assert.Equal(t, store.PurgeOlderThan(1), nil)
	count, err := store.Count()
	assert.Equal(t, err, nil)
	assert.Equal(t, count, 1)

	// a negative age puts the cutoff in the future and sweeps everything
	assert.Equal(t, store.PurgeOlderThan(-1), nil)
	count, err = store.Count()
	assert.Equal(t, err, nil)
	assert.Equal(t, count, 0)
}

func TestStoreClear(t *testing.T) {
	store := openTestStore(t)
	assert.Equal(t, store.Put(testEvent(1, "a", 100)), nil)
	assert.Equal(t, store.Put(testEvent(1, "b", 200)), nil)

	assert.Equal(t, store.Clear(), nil)
	count, err := store.Count()
	assert.Equal(t, err, nil)
	assert.Equal(t, count, 0)
}

func TestStoreConfig(t *testing.T) {
	store := openTestStore(t)

	value, err := store.GetConfig("missing")
	assert.Equal(t, err, nil)
	assert.Equal(t, value, "")

	assert.Equal(t, store.SetConfig("last_drawn", "1700000000"), nil)
	value, err = store.GetConfig("last_drawn")
	assert.Equal(t, err, nil)
	assert.Equal(t, value, "1700000000")

	assert.Equal(t, store.SetConfig("last_drawn", "1700000500"), nil)
	value, err = store.GetConfig("last_drawn")
	assert.Equal(t, err, nil)
	assert.Equal(t, value, "1700000500")
}
