package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// bech32 codecs for the human-readable key forms (npub/nsec).

func encodeBech32(hrp string, keyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("bad key: %w", err)
	}
	if len(keyBytes) != 32 {
		return "", fmt.Errorf("key must be 32 bytes")
	}
	converted, err := bech32.ConvertBits(keyBytes, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, converted)
}

func decodeBech32(expectedHrp string, encoded string) (string, error) {
	hrp, data, err := bech32.Decode(encoded)
	if err != nil {
		return "", err
	}
	if hrp != expectedHrp {
		return "", fmt.Errorf("expected %s prefix, got %s", expectedHrp, hrp)
	}
	keyBytes, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}
	if len(keyBytes) != 32 {
		return "", fmt.Errorf("key must be 32 bytes")
	}
	return hex.EncodeToString(keyBytes), nil
}

func EncodeNpub(pubkeyHex string) (string, error) {
	return encodeBech32("npub", pubkeyHex)
}

func DecodeNpub(npub string) (string, error) {
	return decodeBech32("npub", npub)
}

func EncodeNsec(secretKeyHex string) (string, error) {
	return encodeBech32("nsec", secretKeyHex)
}

func DecodeNsec(nsec string) (string, error) {
	return decodeBech32("nsec", nsec)
}
