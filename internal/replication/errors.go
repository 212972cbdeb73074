package replication

import "errors"

// ErrMalformedMessage is returned when a received byte payload does not
// decode to a well-formed Message (spec §7 "MalformedMessage").
var ErrMalformedMessage = errors.New("replication: malformed message")
