package channel

import "errors"

// Errors returned by the channel state machine (spec §7).
var (
	// ErrChainSealed is returned by SubmitLocal once the channel has sealed.
	ErrChainSealed = errors.New("channel: chain sealed")
	// ErrMalformedMessage names an unusable-record failure; no function in
	// this package returns it.
	ErrMalformedMessage = errors.New("channel: malformed message")
	// ErrFatalProtocolViolation marks a remote record the rules oracle
	// rejected: per spec §4.3 this seals the channel abnormally and refuses
	// further ingest from the offending peer rather than merely dropping.
	ErrFatalProtocolViolation = errors.New("channel: fatal protocol violation")
)
