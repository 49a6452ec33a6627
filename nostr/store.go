package nostr

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	pubkey TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	raw TEXT NOT NULL,
	cached_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_kind ON events (kind);
CREATE INDEX IF NOT EXISTS events_pubkey ON events (pubkey);
CREATE INDEX IF NOT EXISTS events_cached_at ON events (cached_at);

CREATE TABLE IF NOT EXISTS profiles (
	pubkey TEXT PRIMARY KEY,
	profile TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	cached_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// OpenDb opens (or creates) the local store database. Schema is fixed at
// version 1; no migration step.
func OpenDb(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EventStore persists events keyed by id with secondary lookup by kind and
// by author. Writes are idempotent upserts; the payload is content
// addressed, so repeated puts of the same id are no-ops apart from the
// local cached_at metadata.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{
		db: db,
	}
}

func (self *EventStore) Put(event *Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = self.db.Exec(
		`INSERT OR REPLACE INTO events (id, pubkey, created_at, kind, raw, cached_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
		event.Id,
		event.Pubkey,
		event.CreatedAt,
		event.Kind,
		string(raw),
		time.Now().UnixMilli(),
	)
	return err
}

func (self *EventStore) GetById(id string) (*Event, error) {
	row := self.db.QueryRow("SELECT raw FROM events WHERE id = ?", id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	event := &Event{}
	if err := json.Unmarshal([]byte(raw), event); err != nil {
		return nil, fmt.Errorf("corrupt store entry %s: %w", id, err)
	}
	return event, nil
}

func (self *EventStore) GetByKind(kind int) ([]*Event, error) {
	return self.query("SELECT raw FROM events WHERE kind = ?", kind)
}

func (self *EventStore) GetByAuthor(author string) ([]*Event, error) {
	return self.query("SELECT raw FROM events WHERE pubkey = ?", author)
}

func (self *EventStore) GetByKindAndAuthor(kind int, author string) ([]*Event, error) {
	return self.query("SELECT raw FROM events WHERE kind = ? AND pubkey = ?", kind, author)
}

// PurgeByKind forces subsequent queries for the kind to bypass stale
// cached state, e.g. after an out of band edit or delete.
func (self *EventStore) PurgeByKind(kind int) error {
	_, err := self.db.Exec("DELETE FROM events WHERE kind = ?", kind)
	return err
}

// PurgeOlderThan is the retention sweep by local cache time.
func (self *EventStore) PurgeOlderThan(ageDays int) error {
	cutoff := time.Now().AddDate(0, 0, -ageDays).UnixMilli()
	_, err := self.db.Exec("DELETE FROM events WHERE cached_at < ?", cutoff)
	return err
}

func (self *EventStore) Count() (int, error) {
	row := self.db.QueryRow("SELECT COUNT(*) FROM events")
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (self *EventStore) Clear() error {
	_, err := self.db.Exec("DELETE FROM events")
	return err
}

func (self *EventStore) query(statement string, args ...any) ([]*Event, error) {
	rows, err := self.db.Query(statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		event := &Event{}
		if err := json.Unmarshal([]byte(raw), event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// GetConfig returns "" when the key is absent.
func (self *EventStore) GetConfig(key string) (string, error) {
	row := self.db.QueryRow("SELECT value FROM config WHERE key = ?", key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (self *EventStore) SetConfig(key string, value string) error {
	_, err := self.db.Exec("INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)", key, value)
	return err
}
