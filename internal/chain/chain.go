// Package chain implements the move chain and crypto component (spec §4.1):
// an append-only, hash-linked, optionally-signed log of game events.
package chain

import "sync"

// SigningMode mirrors config.SigningMode without importing internal/config,
// keeping this package free of a dependency on the ambient config layer.
type SigningMode uint8

const (
	// Strict rejects any record that is not signed (spec: UnsignedInStrictMode).
	Strict SigningMode = iota
	// Relaxed accepts unsigned records; present signatures are still verified.
	Relaxed
)

// MoveChain is the ordered, append-only sequence of MoveRecords for one
// game. It grows monotonically (I2) and never rewinds.
type MoveChain struct {
	mu      sync.RWMutex
	records []MoveRecord
	mode    SigningMode
	// seen indexes records by canonical hash and by (signer, move, prev_hash)
	// for I6 dedup soundness.
	seenByHash map[[HashSize]byte]int
	seenByTrip map[tripleKey]int
}

type tripleKey struct {
	signer   string
	move     string
	prevHash string
}

// New constructs an empty chain in the given signing mode.
func New(mode SigningMode) *MoveChain {
	return &MoveChain{
		mode:       mode,
		seenByHash: make(map[[HashSize]byte]int),
		seenByTrip: make(map[tripleKey]int),
	}
}

// Len returns the number of records currently in the chain.
func (c *MoveChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Tail returns the most recently appended record and true, or the zero
// value and false if the chain is empty.
func (c *MoveChain) Tail() (MoveRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.records) == 0 {
		return MoveRecord{}, false
	}
	return c.records[len(c.records)-1], true
}

// TailHash returns CanonicalHash(Tail()), or nil if the chain is empty.
func (c *MoveChain) TailHash() []byte {
	tail, ok := c.Tail()
	if !ok {
		return nil
	}
	h := CanonicalHash(tail)
	return h[:]
}

// Records returns a defensive copy of every record currently in the chain.
func (c *MoveChain) Records() []MoveRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MoveRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Append validates and appends a record (spec §4.1 `append`). It enforces,
// in order:
//  1. dedup soundness (I6): a duplicate is squashed to a successful no-op
//     returning the existing index and ok=false, before any other check.
//  2. prev_hash matches H(tail), or is absent iff the chain is empty
//     (ErrChainDiscontinuity).
//  3. the signing mode's signature requirement (ErrUnsignedInStrictMode,
//     ErrBadSignature).
//
// On success it returns the new index and ok=true.
func (c *MoveChain) Append(r MoveRecord) (index int, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dupIdx, isDup := c.findDuplicateLocked(r); isDup {
		return dupIdx, false, nil
	}

	if len(c.records) == 0 {
		if len(r.PrevHash) != 0 {
			return 0, false, ErrChainDiscontinuity
		}
	} else {
		tail := c.records[len(c.records)-1]
		tailHash := CanonicalHash(tail)
		if len(r.PrevHash) != HashSize || string(r.PrevHash) != string(tailHash[:]) {
			return 0, false, ErrChainDiscontinuity
		}
	}

	if r.IsSigned() {
		if !VerifySignature(r) {
			return 0, false, ErrBadSignature
		}
	} else if c.mode == Strict {
		return 0, false, ErrUnsignedInStrictMode
	}

	idx := len(c.records)
	c.records = append(c.records, r)
	c.indexLocked(r, idx)
	return idx, true, nil
}

func (c *MoveChain) findDuplicateLocked(r MoveRecord) (int, bool) {
	hash := CanonicalHash(r)
	if idx, ok := c.seenByHash[hash]; ok {
		return idx, true
	}
	if idx, ok := c.seenByTrip[tripleKeyFor(r)]; ok {
		return idx, true
	}
	return 0, false
}

func (c *MoveChain) indexLocked(r MoveRecord, idx int) {
	c.seenByHash[CanonicalHash(r)] = idx
	c.seenByTrip[tripleKeyFor(r)] = idx
}

func tripleKeyFor(r MoveRecord) tripleKey {
	return tripleKey{
		signer:   string(r.Signer),
		move:     r.Move.String(),
		prevHash: string(r.PrevHash),
	}
}

// VerifyPrefix recomputes hashes for the first k records and reports
// whether every link is consistent (spec §4.1 `verify_prefix`).
func (c *MoveChain) VerifyPrefix(k int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if k > len(c.records) {
		k = len(c.records)
	}
	for i := 1; i < k; i++ {
		expected := CanonicalHash(c.records[i-1])
		if len(c.records[i].PrevHash) != HashSize || string(c.records[i].PrevHash) != string(expected[:]) {
			return false
		}
	}
	if k > 0 && len(c.records[0].PrevHash) != 0 {
		return false
	}
	return true
}
