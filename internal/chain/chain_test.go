package chain

import (
	"crypto/ed25519"
	"testing"

	"gochannel/internal/rules"
)

func mustAppend(t *testing.T, c *MoveChain, r MoveRecord) int {
	t.Helper()
	idx, ok, err := c.Append(r)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !ok {
		t.Fatalf("expected fresh append, got duplicate squash at index %d", idx)
	}
	return idx
}

func TestAppendLinksHashes(t *testing.T) {
	c := New(Relaxed)
	first := MoveRecord{Move: rules.PlaceMove(4, 4, rules.Black), TsMs: 1000}
	mustAppend(t, c, first)

	firstHash := CanonicalHash(first)
	second := MoveRecord{Move: rules.PlaceMove(5, 5, rules.White), TsMs: 2000, PrevHash: firstHash[:]}
	mustAppend(t, c, second)

	if !c.VerifyPrefix(2) {
		t.Fatal("expected verify_prefix to hold for a correctly linked chain")
	}
}

func TestAppendRejectsDiscontinuity(t *testing.T) {
	c := New(Relaxed)
	mustAppend(t, c, MoveRecord{Move: rules.PlaceMove(1, 1, rules.Black), TsMs: 1})

	bogusPrev := [HashSize]byte{0xFF}
	_, _, err := c.Append(MoveRecord{Move: rules.PlaceMove(2, 2, rules.White), TsMs: 2, PrevHash: bogusPrev[:]})
	if err != ErrChainDiscontinuity {
		t.Fatalf("expected ErrChainDiscontinuity, got %v", err)
	}
}

func TestAppendFirstRecordMustHaveNoPrevHash(t *testing.T) {
	c := New(Relaxed)
	bogus := [HashSize]byte{0x01}
	_, _, err := c.Append(MoveRecord{Move: rules.PlaceMove(1, 1, rules.Black), TsMs: 1, PrevHash: bogus[:]})
	if err != ErrChainDiscontinuity {
		t.Fatalf("expected ErrChainDiscontinuity for non-empty prev_hash at index 0, got %v", err)
	}
}

func TestAppendDedupIdempotent(t *testing.T) {
	c := New(Relaxed)
	r := MoveRecord{Move: rules.PlaceMove(3, 3, rules.Black), TsMs: 1}

	idx1 := mustAppend(t, c, r)

	idx2, ok, err := c.Append(r)
	if err != nil {
		t.Fatalf("Append duplicate: %v", err)
	}
	if ok {
		t.Fatal("expected duplicate append to be squashed")
	}
	if idx2 != idx1 {
		t.Fatalf("expected duplicate to report original index %d, got %d", idx1, idx2)
	}
	if c.Len() != 1 {
		t.Fatalf("expected chain length 1 after n appends of the same record, got %d", c.Len())
	}

	// Appending the same record a third time still converges.
	if _, ok, _ := c.Append(r); ok {
		t.Fatal("expected third duplicate append to also be squashed")
	}
	if c.Len() != 1 {
		t.Fatalf("expected chain length to remain 1, got %d", c.Len())
	}
}

func TestStrictModeRejectsUnsigned(t *testing.T) {
	c := New(Strict)
	_, _, err := c.Append(MoveRecord{Move: rules.PlaceMove(1, 1, rules.Black), TsMs: 1})
	if err != ErrUnsignedInStrictMode {
		t.Fatalf("expected ErrUnsignedInStrictMode, got %v", err)
	}
}

func TestStrictModeAcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	_ = pub

	c := New(Strict)
	unsigned := MoveRecord{Move: rules.PlaceMove(1, 1, rules.Black), TsMs: 1}
	signed := Sign(unsigned, priv)

	mustAppend(t, c, signed)
}

func TestAppendRejectsBadSignature(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c := New(Relaxed)
	signed := Sign(MoveRecord{Move: rules.PlaceMove(1, 1, rules.Black), TsMs: 1}, priv)

	// Flip a bit in the signature.
	tampered := signed
	tamperedSig := append([]byte(nil), signed.Signature...)
	tamperedSig[0] ^= 0xFF
	tampered.Signature = tamperedSig

	_, _, err = c.Append(tampered)
	if err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifySignatureRejectsMutation(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signed := Sign(MoveRecord{Move: rules.PlaceMove(1, 1, rules.Black), TsMs: 1}, priv)
	if !VerifySignature(signed) {
		t.Fatal("expected freshly signed record to verify")
	}

	mutated := signed
	mutated.Move = rules.PlaceMove(2, 2, rules.Black)
	if VerifySignature(mutated) {
		t.Fatal("expected mutated move to fail verification")
	}

	swapped := signed
	bogus := [HashSize]byte{0x42}
	swapped.PrevHash = bogus[:]
	if VerifySignature(swapped) {
		t.Fatal("expected prev_hash swap to fail verification")
	}
}

func TestCanonicalHashDeterministic(t *testing.T) {
	r := MoveRecord{Move: rules.PlaceMove(7, 7, rules.White), TsMs: 42}
	h1 := CanonicalHash(r)
	h2 := CanonicalHash(r)
	if h1 != h2 {
		t.Fatal("expected canonical hash to be deterministic")
	}

	other := r
	other.TsMs = 43
	if CanonicalHash(other) == h1 {
		t.Fatal("expected different timestamp to change the hash")
	}
}
