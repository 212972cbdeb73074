package rules

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes the short, non-cryptographic state proof described in
// spec §4.1/§6: a 64-bit hash over board size, to-move, the captures tuple,
// the ordered move list, and the occupied-cell colors in row-major order,
// rendered as 16 lowercase hex digits. Peers exchange fingerprints to detect
// divergence cheaply (StateProof messages) without shipping the full chain.
func Fingerprint(state GameStateSnapshot) string {
	h := xxhash.New()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(state.BoardSize))
	h.Write(buf[:])

	h.Write([]byte{byte(state.ToMove)})

	binary.LittleEndian.PutUint64(buf[:], uint64(state.Captures.Black))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(state.Captures.White))
	h.Write(buf[:])

	for _, mv := range state.Moves {
		h.Write([]byte{byte(mv.Kind), mv.X, mv.Y, byte(mv.Color)})
	}

	for _, c := range state.Board {
		h.Write([]byte{byte(c)})
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
