package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrTransportClosed is returned by Send once the transport has closed.
var ErrTransportClosed = errors.New("transport: closed")

// ErrUnknownTicket is returned by MemoryTransport.ConnectByTicket for a
// ticket no peer has registered under RegisterTicket.
var ErrUnknownTicket = errors.New("transport: unknown ticket")

// MemoryHub wires a set of MemoryTransport endpoints together in-process,
// for exercising the replication layer's sync protocol without a real
// network, generalized to more than the two parties a simple loopback
// pair would give.
type MemoryHub struct {
	mu       sync.Mutex
	peers    map[string]*MemoryTransport
	tickets  map[string]string // ticket -> peerID
}

// NewMemoryHub constructs an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		peers:   make(map[string]*MemoryTransport),
		tickets: make(map[string]string),
	}
}

// RegisterTicket makes ticket redeemable as peerID via ConnectByTicket.
func (h *MemoryHub) RegisterTicket(ticket, peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tickets[ticket] = peerID
}

// Endpoint creates and registers a new transport endpoint identified as
// peerID. Messages Send to peerID from any other endpoint on this hub are
// delivered to it.
func (h *MemoryHub) Endpoint(peerID string) *MemoryTransport {
	t := &MemoryTransport{
		hub:    h,
		peerID: peerID,
		inbox:  make(chan Inbound, 256),
	}
	h.mu.Lock()
	h.peers[peerID] = t
	h.mu.Unlock()
	return t
}

func (h *MemoryHub) deliver(peerID string, msg Inbound) error {
	h.mu.Lock()
	target, ok := h.peers[peerID]
	h.mu.Unlock()
	if !ok {
		return errors.New("transport: unknown peer " + peerID)
	}
	select {
	case target.inbox <- msg:
		return nil
	default:
		return errors.New("transport: peer " + peerID + " inbox full")
	}
}

func (h *MemoryHub) resolveTicket(ticket string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peerID, ok := h.tickets[ticket]
	return peerID, ok
}

// MemoryTransport is one endpoint on a MemoryHub.
type MemoryTransport struct {
	hub    *MemoryHub
	peerID string

	mu     sync.Mutex
	closed bool
	inbox  chan Inbound
}

// Send delivers payload to peerID via the shared hub, tagging it as
// having come from this endpoint.
func (t *MemoryTransport) Send(peerID string, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	return t.hub.deliver(peerID, Inbound{PeerID: t.peerID, Payload: payload})
}

// Recv returns this endpoint's inbound channel.
func (t *MemoryTransport) Recv() <-chan Inbound { return t.inbox }

// ConnectByTicket redeems ticket against the hub's registered tickets.
func (t *MemoryTransport) ConnectByTicket(ctx context.Context, ticket string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	peerID, ok := t.hub.resolveTicket(ticket)
	if !ok {
		return "", ErrUnknownTicket
	}
	return peerID, nil
}

// Close marks the endpoint closed and closes its inbox channel.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.inbox)
	return nil
}

var _ Transport = (*MemoryTransport)(nil)
