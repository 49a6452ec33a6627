package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event is the atomic unit of the protocol. The id is a pure function of
// (pubkey, created_at, kind, tags, content); two events with the same id
// are the same event.
type Event struct {
	Id        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// serialize produces the canonical id preimage,
// [0, pubkey, created_at, kind, tags, content], without html escaping.
func (self *Event) serialize() ([]byte, error) {
	tags := self.Tags
	if tags == nil {
		tags = [][]string{}
	}
	arr := []any{
		0,
		self.Pubkey,
		self.CreatedAt,
		self.Kind,
		tags,
		self.Content,
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(arr); err != nil {
		return nil, err
	}
	// Encode appends a newline
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (self *Event) ComputeId() (string, error) {
	serialized, err := self.serialize()
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:]), nil
}

// Verify checks the content-derived id and the schnorr signature.
func (self *Event) Verify() error {
	id, err := self.ComputeId()
	if err != nil {
		return err
	}
	if id != self.Id {
		return fmt.Errorf("event id mismatch: %s != %s", self.Id, id)
	}
	if self.Sig == "" {
		return fmt.Errorf("event is not signed")
	}
	pubkeyBytes, err := hex.DecodeString(self.Pubkey)
	if err != nil {
		return fmt.Errorf("bad pubkey: %w", err)
	}
	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return fmt.Errorf("bad pubkey: %w", err)
	}
	sigBytes, err := hex.DecodeString(self.Sig)
	if err != nil {
		return fmt.Errorf("bad signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("bad signature: %w", err)
	}
	idBytes, err := hex.DecodeString(self.Id)
	if err != nil {
		return err
	}
	if !sig.Verify(idBytes, pubkey) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}

// TagValue returns the second element of the first tag named `name`,
// or "" if absent.
func (self *Event) TagValue(name string) string {
	for _, tag := range self.Tags {
		if 2 <= len(tag) && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// DTag returns the replaceable-event parameter.
func (self *Event) DTag() string {
	return self.TagValue("d")
}

// EventBuilder assembles an unsigned event in insertion order.
type EventBuilder struct {
	kind    int
	content string
	tags    [][]string
}

func NewEventBuilder(kind int, content string) *EventBuilder {
	return &EventBuilder{
		kind:    kind,
		content: content,
		tags:    [][]string{},
	}
}

func (self *EventBuilder) AddTag(name string, values ...string) *EventBuilder {
	tag := append([]string{name}, values...)
	self.tags = append(self.tags, tag)
	return self
}

// UnsignedEvent stamps the event with the author and the current time and
// computes the id. The sig is left empty for the signer.
func (self *EventBuilder) UnsignedEvent(pubkey string) (*Event, error) {
	event := &Event{
		Pubkey:    pubkey,
		CreatedAt: time.Now().Unix(),
		Kind:      self.kind,
		Tags:      self.tags,
		Content:   self.content,
	}
	id, err := event.ComputeId()
	if err != nil {
		return nil, err
	}
	event.Id = id
	return event, nil
}
