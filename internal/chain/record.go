package chain

import (
	"encoding/binary"

	"gochannel/internal/rules"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the width of a canonical record hash and of a non-empty
// PrevHash (spec §6: "prev_hash field, when present, is exactly 32 bytes").
const HashSize = 32

// MoveRecord is one authenticated link in a MoveChain (spec §3). Once
// appended it is immutable; nothing in this package ever mutates a record
// in place.
type MoveRecord struct {
	Move      rules.Move
	TsMs      uint64
	PrevHash  []byte // nil for index 0, else exactly HashSize bytes
	Signature []byte // nil if unsigned, else an ed25519 signature
	Signer    []byte // nil if unsigned, else an ed25519 public key
	// Tag is an optional single-byte record annotation folded into the
	// canonical hash alongside the rest of the record. Reserved for callers
	// that need an extra discriminator (e.g. a protocol-generation marker);
	// the channel core never sets or reads it.
	Tag *byte
}

// IsSigned reports whether the record carries a signature and signer.
func (r MoveRecord) IsSigned() bool {
	return len(r.Signature) > 0 && len(r.Signer) > 0
}

// CanonicalHash computes the deterministic 256-bit hash over the
// order-fixed encoding described in spec §4.1/§6: move discriminant and
// payload, timestamp as little-endian u64, optional prev_hash bytes
// (absent ≡ empty), and an optional tag byte. The signature and signer
// fields are always excluded.
func CanonicalHash(r MoveRecord) [HashSize]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an invalid MAC key, which we never
		// supply; a failure here indicates a corrupted Go runtime.
		panic("chain: blake2b.New256: " + err.Error())
	}

	writeMovePayload(h, r.Move)

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], r.TsMs)
	h.Write(tsBuf[:])

	if len(r.PrevHash) > 0 {
		h.Write(r.PrevHash)
	}

	if r.Tag != nil {
		h.Write([]byte{*r.Tag})
	}

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeMovePayload(h interface{ Write([]byte) (int, error) }, mv rules.Move) {
	switch mv.Kind {
	case rules.MovePlace:
		h.Write([]byte{0x00, mv.X, mv.Y, byte(mv.Color)})
	case rules.MovePass:
		h.Write([]byte{0x01})
	case rules.MoveResign:
		h.Write([]byte{0x02})
	}
}
