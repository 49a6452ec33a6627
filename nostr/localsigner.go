package nostr

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// LocalSigner holds a secp256k1 secret key in process.
type LocalSigner struct {
	secretKey *secp256k1.PrivateKey
}

// NewLocalSigner accepts a hex or nsec encoded secret key.
func NewLocalSigner(secretKey string) (*LocalSigner, error) {
	secretKey = strings.TrimSpace(secretKey)
	if strings.HasPrefix(secretKey, "nsec1") {
		decoded, err := DecodeNsec(secretKey)
		if err != nil {
			return nil, err
		}
		secretKey = decoded
	}
	keyBytes, err := hex.DecodeString(secretKey)
	if err != nil {
		return nil, fmt.Errorf("bad secret key: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes")
	}
	return &LocalSigner{
		secretKey: secp256k1.PrivKeyFromBytes(keyBytes),
	}, nil
}

// GenerateLocalSigner creates a fresh keypair.
func GenerateLocalSigner() (*LocalSigner, error) {
	secretKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		secretKey: secretKey,
	}, nil
}

func (self *LocalSigner) PublicKey() (string, error) {
	return hex.EncodeToString(schnorr.SerializePubKey(self.secretKey.PubKey())), nil
}

func (self *LocalSigner) SecretKey() string {
	return hex.EncodeToString(self.secretKey.Serialize())
}

// SignEvent stamps the author, recomputes the id, and signs.
// The input is not mutated.
func (self *LocalSigner) SignEvent(event *Event) (*Event, error) {
	pubkey, _ := self.PublicKey()
	signed := *event
	signed.Pubkey = pubkey
	id, err := signed.ComputeId()
	if err != nil {
		return nil, err
	}
	signed.Id = id
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, err
	}
	sig, err := schnorr.Sign(self.secretKey, idBytes)
	if err != nil {
		return nil, err
	}
	signed.Sig = hex.EncodeToString(sig.Serialize())
	return &signed, nil
}
