package nostr

import (
	"errors"
)

// ErrNoSigner is a precondition failure. The user has to provide a signing
// capability before any publish; it is not retryable.
var ErrNoSigner = errors.New("no signer available")

// Signer is the event authority. The credential usually lives with a
// separate agent (browser extension, hardware signer); the in-process
// LocalSigner exists for the cli and for tests.
type Signer interface {
	PublicKey() (string, error)
	SignEvent(event *Event) (*Event, error)
}
