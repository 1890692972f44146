package keys

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/riscvbooks/eventrelay/internal/event"
)

// CanonicalPayload returns the byte sequence that signer and verifier
// agree on for an event. The form is pinned: the JSON serialization of
// the array
//
//	[0, id, user, ops, code, created_at, data, tags]
//
// produced by encoding/json, which emits object keys in sorted order
// and no insignificant whitespace. Tags are included; servertimestamp,
// sig, and status are not, since the server assigns them after signing.
func CanonicalPayload(e *event.Event) ([]byte, error) {
	return json.Marshal([]any{
		0,
		e.ID,
		e.User,
		string(e.Ops),
		e.Code,
		e.CreatedAt,
		e.Data,
		e.Tags,
	})
}

// CanonicalDigest returns the SHA-256 digest of the canonical payload.
func CanonicalDigest(e *event.Event) ([32]byte, error) {
	payload, err := CanonicalPayload(e)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(payload), nil
}
