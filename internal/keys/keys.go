// Package keys implements the relay's signature scheme: BIP340 schnorr
// over secp256k1, applied to the SHA-256 digest of a pinned canonical
// event serialization. Public keys travel as 32-byte x-only hex or as
// bech32 strings with the "epub" prefix.
package keys

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/riscvbooks/eventrelay/internal/event"
)

// GeneratePrivateKey returns a fresh random signing key.
func GeneratePrivateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// PrivateKeyFromHex parses a 32-byte hex-encoded private key.
func PrivateKeyFromHex(value string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errInvalidKeyLength
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// PrivateKeyHex returns the hex encoding of a private key.
func PrivateKeyHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(priv.Serialize())
}

// PublicKeyHex returns the x-only hex encoding of the public key.
func PublicKeyHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}

// Sign computes the event's signature and returns it hex-encoded. The
// event's Sig field is not consulted or modified.
func Sign(e *event.Event, priv *btcec.PrivateKey) (string, error) {
	digest, err := CanonicalDigest(e)
	if err != nil {
		return "", err
	}
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks the event's detached signature against the claimed
// public key (x-only hex or bech32 "epub" form). It never panics and
// returns false on any malformed input: bad hex, a point off the curve,
// or a truncated signature.
func Verify(e *event.Event, publicKey string) bool {
	pubBytes, err := publicKeyBytes(publicKey)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	digest, err := CanonicalDigest(e)
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], pub)
}

func publicKeyBytes(publicKey string) ([]byte, error) {
	if isEpub(publicKey) {
		return EpubDecode(publicKey)
	}
	raw, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, errInvalidKeyLength
	}
	return raw, nil
}
