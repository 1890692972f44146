package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Bech32 prefixes for relay key material.
const (
	epubPrefix = "epub"
	esecPrefix = "esec"
)

var (
	errInvalidKeyLength = errors.New("keys: key must be 32 bytes")
	errWrongPrefix      = errors.New("keys: unexpected bech32 prefix")
)

func isEpub(value string) bool {
	return strings.HasPrefix(value, epubPrefix+"1")
}

// EpubEncode renders an x-only public key (hex) in bech32 "epub" form.
func EpubEncode(publicKeyHex string) (string, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return "", err
	}
	return encodeBech32(epubPrefix, raw)
}

// EpubDecode returns the raw public key bytes of a bech32 "epub" string.
func EpubDecode(encoded string) ([]byte, error) {
	return decodeBech32(epubPrefix, encoded)
}

// EsecEncode renders a private key in bech32 "esec" form.
func EsecEncode(privateKey []byte) (string, error) {
	return encodeBech32(esecPrefix, privateKey)
}

// EsecDecode returns the raw private key bytes of a bech32 "esec" string.
func EsecDecode(encoded string) ([]byte, error) {
	return decodeBech32(esecPrefix, encoded)
}

func encodeBech32(prefix string, data []byte) (string, error) {
	if len(data) != 32 {
		return "", errInvalidKeyLength
	}
	words, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, words)
}

func decodeBech32(prefix, encoded string) ([]byte, error) {
	hrp, words, err := bech32.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if hrp != prefix {
		return nil, fmt.Errorf("%w: got %q, want %q", errWrongPrefix, hrp, prefix)
	}
	data, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(data) != 32 {
		return nil, errInvalidKeyLength
	}
	return data, nil
}
