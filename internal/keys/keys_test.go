package keys

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/riscvbooks/eventrelay/internal/event"
)

func fixtureEvent() *event.Event {
	return &event.Event{
		ID:        "fixture-event",
		User:      "a3f1",
		Ops:       event.OpsCreate,
		Code:      200,
		CreatedAt: 1700000000000,
		Data: map[string]any{
			"title": "RISC-V Reader",
			"price": 42,
		},
		Tags: event.Tags{
			event.NewTag("t", "book"),
			event.NewTag("bid", "5"),
		},
	}
}

func fixtureKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	seed, err := hex.DecodeString("0101010101010101010101010101010101010101010101010101010101010101")
	if err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(seed)
	return priv
}

func TestCanonicalPayloadIsPinned(t *testing.T) {
	payload, err := CanonicalPayload(fixtureEvent())
	if err != nil {
		t.Fatalf("canonical payload: %v", err)
	}
	want := `[0,"fixture-event","a3f1","C",200,1700000000000,` +
		`{"price":42,"title":"RISC-V Reader"},[["t","book"],["bid","5"]]]`
	if string(payload) != want {
		t.Fatalf("canonical payload drifted:\n got %s\nwant %s", payload, want)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	priv := fixtureKey(t)
	ev := fixtureEvent()
	ev.User = PublicKeyHex(priv)

	sig, err := Sign(ev, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ev.Sig = sig

	if !Verify(ev, ev.User) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyRejectsPayloadMutation(t *testing.T) {
	priv := fixtureKey(t)
	ev := fixtureEvent()
	ev.User = PublicKeyHex(priv)
	sig, err := Sign(ev, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ev.Sig = sig

	mutations := []struct {
		name   string
		mutate func(*event.Event)
	}{
		{"id", func(e *event.Event) { e.ID = "fixture-evenu" }},
		{"code", func(e *event.Event) { e.Code = 201 }},
		{"created_at", func(e *event.Event) { e.CreatedAt++ }},
		{"data", func(e *event.Event) { e.Data["price"] = 43 }},
		{"tags", func(e *event.Event) { e.Tags[0] = event.NewTag("t", "movie") }},
	}
	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			mutated := fixtureEvent()
			mutated.User = ev.User
			mutated.Sig = ev.Sig
			tc.mutate(mutated)
			if Verify(mutated, mutated.User) {
				t.Fatalf("mutation of %s still verified", tc.name)
			}
		})
	}
}

func TestVerifyRejectsSignatureMutation(t *testing.T) {
	priv := fixtureKey(t)
	ev := fixtureEvent()
	ev.User = PublicKeyHex(priv)
	sig, err := Sign(ev, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	flipped := []byte(sig)
	if flipped[0] == 'f' {
		flipped[0] = '0'
	} else {
		flipped[0] = 'f'
	}
	ev.Sig = string(flipped)
	if Verify(ev, ev.User) {
		t.Fatal("mutated signature still verified")
	}
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	priv := fixtureKey(t)
	ev := fixtureEvent()
	ev.User = PublicKeyHex(priv)
	sig, err := Sign(ev, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ev.Sig = sig

	cases := []struct {
		name   string
		pubkey string
		sig    string
	}{
		{"bad hex pubkey", "zz" + ev.User[2:], ev.Sig},
		{"short pubkey", ev.User[:16], ev.Sig},
		{"bad hex sig", ev.User, "not-hex"},
		{"truncated sig", ev.User, ev.Sig[:32]},
		{"empty sig", ev.User, ""},
		{"empty pubkey", "", ev.Sig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			probe := fixtureEvent()
			probe.User = ev.User
			probe.Sig = tc.sig
			if Verify(probe, tc.pubkey) {
				t.Fatal("malformed input verified")
			}
		})
	}
}

func TestVerifyAcceptsEpubEncodedPubkey(t *testing.T) {
	priv := fixtureKey(t)
	ev := fixtureEvent()
	ev.User = PublicKeyHex(priv)
	sig, err := Sign(ev, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ev.Sig = sig

	epub, err := EpubEncode(ev.User)
	if err != nil {
		t.Fatalf("epub encode: %v", err)
	}
	if !Verify(ev, epub) {
		t.Fatal("expected epub-encoded pubkey to verify")
	}
}

func TestBech32RoundTrip(t *testing.T) {
	priv := fixtureKey(t)

	epub, err := EpubEncode(PublicKeyHex(priv))
	if err != nil {
		t.Fatalf("epub encode: %v", err)
	}
	if !strings.HasPrefix(epub, "epub1") {
		t.Fatalf("unexpected epub prefix: %s", epub)
	}
	pubBytes, err := EpubDecode(epub)
	if err != nil {
		t.Fatalf("epub decode: %v", err)
	}
	if hex.EncodeToString(pubBytes) != PublicKeyHex(priv) {
		t.Fatal("epub round trip mismatch")
	}

	esec, err := EsecEncode(priv.Serialize())
	if err != nil {
		t.Fatalf("esec encode: %v", err)
	}
	secBytes, err := EsecDecode(esec)
	if err != nil {
		t.Fatalf("esec decode: %v", err)
	}
	if hex.EncodeToString(secBytes) != PrivateKeyHex(priv) {
		t.Fatal("esec round trip mismatch")
	}

	if _, err := EpubDecode(esec); err == nil {
		t.Fatal("expected prefix mismatch decoding esec as epub")
	}
}
