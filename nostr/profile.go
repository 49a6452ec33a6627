package nostr

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/golang/glog"
)

// Profile is the parsed kind 0 payload.
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	About       string `json:"about,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Website     string `json:"website,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
}

type CachedProfile struct {
	Pubkey    string
	Profile   *Profile
	CreatedAt int64
	CachedAt  int64
}

// ProfileStore keeps at most one current profile per author. The profile
// kind is replaceable: an incoming event replaces the stored entry only if
// its created_at is strictly greater, independent of arrival order.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{
		db: db,
	}
}

// Upsert applies the latest-wins rule. A malformed payload is logged and
// skipped; it must never break the caller's flow.
func (self *ProfileStore) Upsert(event *Event) error {
	existing, err := self.Get(event.Pubkey)
	if err != nil {
		return err
	}
	if existing != nil && event.CreatedAt <= existing.CreatedAt {
		glog.V(2).Infof("[profile]skip older profile for %s\n", event.Pubkey)
		return nil
	}

	profile := &Profile{}
	if err := json.Unmarshal([]byte(event.Content), profile); err != nil {
		glog.Infof("[profile]parse error for %s = %s\n", event.Pubkey, err)
		return nil
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	_, err = self.db.Exec(
		`INSERT OR REPLACE INTO profiles (pubkey, profile, created_at, cached_at)
			VALUES (?, ?, ?, ?)`,
		event.Pubkey,
		string(raw),
		event.CreatedAt,
		time.Now().UnixMilli(),
	)
	return err
}

func (self *ProfileStore) Get(pubkey string) (*CachedProfile, error) {
	row := self.db.QueryRow(
		"SELECT profile, created_at, cached_at FROM profiles WHERE pubkey = ?",
		pubkey,
	)
	var raw string
	cached := &CachedProfile{
		Pubkey: pubkey,
	}
	if err := row.Scan(&raw, &cached.CreatedAt, &cached.CachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	profile := &Profile{}
	if err := json.Unmarshal([]byte(raw), profile); err != nil {
		return nil, err
	}
	cached.Profile = profile
	return cached, nil
}

// GetMany omits authors with no stored entry from the result.
func (self *ProfileStore) GetMany(pubkeys []string) (map[string]*CachedProfile, error) {
	results := map[string]*CachedProfile{}
	for _, pubkey := range pubkeys {
		cached, err := self.Get(pubkey)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			results[pubkey] = cached
		}
	}
	return results, nil
}

func (self *ProfileStore) Clear() error {
	_, err := self.db.Exec("DELETE FROM profiles")
	return err
}
