package nostr

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestNpubRoundTrip(t *testing.T) {
	signer, err := GenerateLocalSigner()
	assert.Equal(t, err, nil)
	pubkey, err := signer.PublicKey()
	assert.Equal(t, err, nil)

	npub, err := EncodeNpub(pubkey)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.HasPrefix(npub, "npub1"), true)

	decoded, err := DecodeNpub(npub)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, pubkey)
}

func TestNsecRoundTrip(t *testing.T) {
	signer, err := GenerateLocalSigner()
	assert.Equal(t, err, nil)
	secretKey := signer.SecretKey()

	nsec, err := EncodeNsec(secretKey)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.HasPrefix(nsec, "nsec1"), true)

	decoded, err := DecodeNsec(nsec)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, secretKey)
}

func TestDecodeWrongPrefix(t *testing.T) {
	signer, err := GenerateLocalSigner()
	assert.Equal(t, err, nil)

	nsec, err := EncodeNsec(signer.SecretKey())
	assert.Equal(t, err, nil)

	_, err = DecodeNpub(nsec)
	assert.NotEqual(t, err, nil)
}

func TestEncodeBadKey(t *testing.T) {
	_, err := EncodeNpub("nothex")
	assert.NotEqual(t, err, nil)

	_, err = EncodeNpub("abcd")
	assert.NotEqual(t, err, nil)
}
