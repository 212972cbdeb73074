package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gochannel/internal/auth"
)

func newTicket(t *testing.T, issuer *auth.TicketIssuer, peerID, gameID string) string {
	t.Helper()
	ticket, err := issuer.Issue(peerID, gameID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return ticket
}

func TestWebsocketTransportSendRecvRoundTrip(t *testing.T) {
	verifier, err := auth.NewTicketVerifier("shared-secret", time.Second)
	if err != nil {
		t.Fatalf("NewTicketVerifier: %v", err)
	}
	issuer, err := auth.NewTicketIssuer("shared-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTicketIssuer: %v", err)
	}

	server := NewWebsocketTransport(verifier, issuer, nil)
	defer server.Close()

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	client := NewWebsocketTransport(verifier, issuer, nil)
	defer client.Close()

	ticket := newTicket(t, issuer, "alice", "game-1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peerID, err := client.DialAndJoin(ctx, wsURL, ticket)
	if err != nil {
		t.Fatalf("DialAndJoin: %v", err)
	}
	if peerID != "alice" {
		t.Fatalf("expected peerID alice, got %q", peerID)
	}

	if err := server.Send("alice", []byte("hello-alice")); err != nil {
		t.Fatalf("server Send: %v", err)
	}
	select {
	case msg := <-client.Recv():
		if string(msg.Payload) != "hello-alice" {
			t.Fatalf("unexpected client-side payload: %s", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client to receive")
	}

	if err := client.Send("alice", []byte("hello-server")); err != nil {
		t.Fatalf("client Send: %v", err)
	}
	select {
	case msg := <-server.Recv():
		if msg.PeerID != "alice" || string(msg.Payload) != "hello-server" {
			t.Fatalf("unexpected server-side inbound: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive")
	}
}

func TestWebsocketTransportRejectsBadTicket(t *testing.T) {
	verifier, err := auth.NewTicketVerifier("shared-secret", time.Second)
	if err != nil {
		t.Fatalf("NewTicketVerifier: %v", err)
	}

	server := NewWebsocketTransport(verifier, nil, nil)
	defer server.Close()
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	client := NewWebsocketTransport(verifier, nil, nil)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.DialAndJoin(ctx, wsURL, "not-a-real-ticket"); err == nil {
		t.Fatal("expected DialAndJoin to fail with an invalid ticket")
	}
}

func TestWebsocketTransportConnectByTicketWithoutDialing(t *testing.T) {
	verifier, err := auth.NewTicketVerifier("shared-secret", time.Second)
	if err != nil {
		t.Fatalf("NewTicketVerifier: %v", err)
	}
	issuer, err := auth.NewTicketIssuer("shared-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTicketIssuer: %v", err)
	}
	tr := NewWebsocketTransport(verifier, issuer, nil)
	defer tr.Close()

	ticket := newTicket(t, issuer, "bob", "game-2")
	peerID, err := tr.ConnectByTicket(context.Background(), ticket)
	if err != nil {
		t.Fatalf("ConnectByTicket: %v", err)
	}
	if peerID != "bob" {
		t.Fatalf("expected peerID bob, got %q", peerID)
	}
}
