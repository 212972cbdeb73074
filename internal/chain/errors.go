package chain

import "errors"

// Errors returned by Append, matching spec §7's chain-scoped error kinds.
var (
	// ErrChainDiscontinuity is returned when a record's prev_hash does not
	// link to the current tail.
	ErrChainDiscontinuity = errors.New("chain discontinuity")
	// ErrBadSignature is returned when a present signature fails verification.
	ErrBadSignature = errors.New("bad signature")
	// ErrUnsignedInStrictMode is returned when a strict-mode chain receives
	// an unsigned record.
	ErrUnsignedInStrictMode = errors.New("unsigned record in strict mode")
)

// Duplicate is not an error: Append returns the existing index with ok=false
// per I6 ("silently squashed to a successful no-op"). Callers that need to
// distinguish a fresh append from a deduplicated one inspect the second
// return value.
