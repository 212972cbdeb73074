package grpctransport

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"gochannel/internal/auth"
	"gochannel/internal/logging"
	"gochannel/internal/transport"
)

// ticketMetadataKey is the gRPC metadata key a client sets to the
// admission ticket it was issued, read back by the server before the
// stream is adopted — the RPC analogue of the websocket transport's
// "ticket" query parameter.
const ticketMetadataKey = "gochannel-ticket"

// Transport implements transport.Transport over the hand-wired Link RPC.
// One process can act as server, client, or both at once: incoming
// streams are adopted via RegisterReplicationServer/grpc.Server, outgoing
// ones via Dial.
type Transport struct {
	verifier   *auth.TicketVerifier
	log        *logging.Logger
	compressor Compressor

	mu    sync.Mutex
	peers map[string]*grpcPeer
	inbox chan transport.Inbound

	closeOnce sync.Once
	closed    chan struct{}
}

type grpcPeer struct {
	peerID string
	stream LinkStream
	send   chan []byte
}

// NewTransport constructs a transport that verifies admission tickets
// with verifier.
func NewTransport(verifier *auth.TicketVerifier, log *logging.Logger) *Transport {
	if log == nil {
		log = logging.NewTestLogger()
	}
	return &Transport{
		verifier:   verifier,
		log:        log,
		compressor: NewSnappyCompressor(),
		peers:      make(map[string]*grpcPeer),
		inbox:      make(chan transport.Inbound, 256),
		closed:     make(chan struct{}),
	}
}

// WithCompressor overrides the default snappy compressor.
func (t *Transport) WithCompressor(c Compressor) *Transport {
	if c != nil {
		t.compressor = c
	}
	return t
}

// Link implements grpctransport.ReplicationServer: it verifies the
// caller's ticket from incoming metadata, then adopts the stream as that
// peer's connection until it errors out or the transport closes.
func (t *Transport) Link(ctx context.Context, stream LinkStream) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	tickets := md.Get(ticketMetadataKey)
	if len(tickets) == 0 {
		return status.Error(codes.Unauthenticated, "missing ticket")
	}
	peerID, _, err := auth.VerifyTicket(t.verifier, tickets[0])
	if err != nil {
		return status.Errorf(codes.Unauthenticated, "invalid ticket: %v", err)
	}

	return t.runPeer(ctx, peerID, stream)
}

// Dial opens a client-side Link stream against a remote running
// RegisterReplicationServer, presenting ticket for admission, and adopts
// it as peerID's connection. cc must already be connected (e.g. via
// grpc.NewClient).
func (t *Transport) Dial(ctx context.Context, cc grpc.ClientConnInterface, peerID, ticket string) error {
	outCtx := metadata.AppendToOutgoingContext(ctx, ticketMetadataKey, ticket)
	stream, err := NewLinkClient(outCtx, cc)
	if err != nil {
		return err
	}
	go func() {
		if err := t.runPeer(outCtx, peerID, stream); err != nil {
			t.log.Warn("grpc link ended", logging.String("peer_id", peerID), logging.Error(err))
		}
	}()
	return nil
}

func (t *Transport) runPeer(ctx context.Context, peerID string, stream LinkStream) error {
	peer := &grpcPeer{peerID: peerID, stream: stream, send: make(chan []byte, 64)}

	t.mu.Lock()
	if old, ok := t.peers[peerID]; ok {
		close(old.send)
	}
	t.peers[peerID] = peer
	t.mu.Unlock()
	defer t.dropPeer(peerID, peer)

	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			payload, err := t.compressor.Decompress(msg.GetValue())
			if err != nil {
				t.log.Warn("dropping frame that failed to decompress", logging.String("peer_id", peerID), logging.Error(err))
				continue
			}
			select {
			case t.inbox <- transport.Inbound{PeerID: peerID, Payload: payload}:
			case <-t.closed:
				errCh <- nil
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-peer.send:
			if !ok {
				return nil
			}
			compressed, err := t.compressor.Compress(payload)
			if err != nil {
				return err
			}
			if err := stream.Send(wrapperspb.Bytes(compressed)); err != nil {
				return err
			}
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closed:
			return nil
		}
	}
}

func (t *Transport) dropPeer(peerID string, peer *grpcPeer) {
	t.mu.Lock()
	if current, ok := t.peers[peerID]; ok && current == peer {
		delete(t.peers, peerID)
	}
	t.mu.Unlock()
}

// Send enqueues payload for peerID's active Link stream.
func (t *Transport) Send(peerID string, payload []byte) error {
	t.mu.Lock()
	peer, ok := t.peers[peerID]
	t.mu.Unlock()
	if !ok {
		return errors.New("grpctransport: no link for peer " + peerID)
	}
	select {
	case peer.send <- payload:
		return nil
	default:
		return errors.New("grpctransport: send buffer full for peer " + peerID)
	}
}

// Recv returns the shared inbound channel, frames from every peer
// multiplexed onto it.
func (t *Transport) Recv() <-chan transport.Inbound { return t.inbox }

// ConnectByTicket verifies ticket and returns the peer id it grants,
// without itself establishing a stream — pair with Dial to actually
// connect.
func (t *Transport) ConnectByTicket(ctx context.Context, ticket string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	peerID, _, err := auth.VerifyTicket(t.verifier, ticket)
	if err != nil {
		return "", err
	}
	return peerID, nil
}

// Close stops admitting new traffic; active streams end on their next
// send/recv attempt.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

var _ transport.Transport = (*Transport)(nil)
var _ ReplicationServer = (*Transport)(nil)
