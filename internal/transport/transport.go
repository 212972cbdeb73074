// Package transport defines the Transport interface consumed by the
// replication layer (spec §6: "the transport owns encryption, framing,
// congestion control") and its implementations: an in-memory transport
// for tests, a websocket transport for real peers, and (in the
// grpctransport subpackage) a gRPC-linked transport for real peers.
package transport

import "context"

// Inbound is one received frame, tagged with the peer it arrived from.
type Inbound struct {
	PeerID  string
	Payload []byte
}

// Transport is the consumed collaborator spec §6 describes: peer-addressed
// send, a stream of inbound frames, and ticket-based connection admission.
// Everything above this interface (replication's Session) deals in
// decoded Message values; everything below it deals in bytes and
// connections.
type Transport interface {
	// Send delivers payload to peerID. It does not block on an
	// acknowledgement; the replication layer's own ACK watchdog covers
	// that.
	Send(peerID string, payload []byte) error

	// Recv returns the channel of inbound frames. MemoryTransport closes it
	// on Close; the websocket and gRPC transports leave it open and stop
	// delivering to it.
	Recv() <-chan Inbound

	// ConnectByTicket redeems an opaque, out-of-band-exchanged ticket and
	// returns the peer id it grants entry as.
	ConnectByTicket(ctx context.Context, ticket string) (peerID string, err error)

	// Close releases the transport's resources. Idempotent.
	Close() error
}
