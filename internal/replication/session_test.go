package replication

import (
	"testing"
	"time"

	"gochannel/internal/chain"
	"gochannel/internal/channel"
	"gochannel/internal/rules"
)

func newTestSessionPair(t *testing.T) (*Session, *Session) {
	t.Helper()
	aliceCh := channel.New("g1", 9, rules.NewDefaultOracle(), chain.Relaxed)
	aliceCh.Subscribe()
	bobCh := channel.New("g1", 9, rules.NewDefaultOracle(), chain.Relaxed)
	bobCh.Subscribe()

	alice := NewSession(aliceCh, 3*time.Second)
	alice.AddPeer("bob")
	bob := NewSession(bobCh, 3*time.Second)
	bob.AddPeer("alice")
	return alice, bob
}

// TestSessionFirstStonePropagation mirrors spec scenario S1: a single local
// move reaches the peer and is acknowledged back.
func TestSessionFirstStonePropagation(t *testing.T) {
	alice, bob := newTestSessionPair(t)

	if err := alice.SubmitLocal(rules.PlaceMove(4, 4, rules.Black)); err != nil {
		t.Fatalf("SubmitLocal: %v", err)
	}

	payload, ok := alice.DrainOutbound("bob")
	if !ok {
		t.Fatal("expected a queued MovePropose for bob")
	}
	if err := bob.DeliverInbound("alice", payload); err != nil {
		t.Fatalf("bob DeliverInbound: %v", err)
	}
	if bob.ch.ChainLen() != 1 {
		t.Fatalf("expected bob's chain length 1, got %d", bob.ch.ChainLen())
	}

	ack, ok := bob.DrainOutbound("alice")
	if !ok {
		t.Fatal("expected bob to queue a MoveAck for alice")
	}
	if err := alice.DeliverInbound("bob", ack); err != nil {
		t.Fatalf("alice DeliverInbound: %v", err)
	}

	alice.mu.Lock()
	hasPending := alice.hasPending
	alice.mu.Unlock()
	if hasPending {
		t.Fatal("expected alice's pending ACK to be cleared")
	}
}

// TestSessionDuplicateSuppression mirrors spec scenario S2: a redelivered
// MovePropose does not grow the chain but is still acknowledged.
func TestSessionDuplicateSuppression(t *testing.T) {
	alice, bob := newTestSessionPair(t)

	if err := alice.SubmitLocal(rules.PlaceMove(4, 4, rules.Black)); err != nil {
		t.Fatalf("SubmitLocal: %v", err)
	}
	payload, _ := alice.DrainOutbound("bob")

	if err := bob.DeliverInbound("alice", payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := bob.DeliverInbound("alice", payload); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if bob.ch.ChainLen() != 1 {
		t.Fatalf("expected chain length to stay at 1 after redelivery, got %d", bob.ch.ChainLen())
	}

	firstAck, ok := bob.DrainOutbound("alice")
	if !ok {
		t.Fatal("expected an ACK for the first delivery")
	}
	secondAck, ok := bob.DrainOutbound("alice")
	if !ok {
		t.Fatal("expected a second ACK for the redelivered propose too")
	}
	if firstAck == nil || secondAck == nil {
		t.Fatal("expected both ACK payloads to be non-nil")
	}
}

// TestSessionPacketLossTriggersSyncRecovery mirrors spec scenario S3: a
// dropped MovePropose is later recovered by SyncRequest/SyncResponse rather
// than leaving the peer permanently behind.
func TestSessionPacketLossTriggersSyncRecovery(t *testing.T) {
	alice, bob := newTestSessionPair(t)

	if err := alice.SubmitLocal(rules.PlaceMove(4, 4, rules.Black)); err != nil {
		t.Fatalf("first SubmitLocal: %v", err)
	}
	firstPropose, _ := alice.DrainOutbound("bob")
	_ = firstPropose // simulates the packet being lost: never delivered to bob

	if err := alice.SubmitLocal(rules.PlaceMove(5, 5, rules.White)); err != nil {
		t.Fatalf("second SubmitLocal: %v", err)
	}
	secondPropose, ok := alice.DrainOutbound("bob")
	if !ok {
		t.Fatal("expected a second queued MovePropose")
	}

	if err := bob.DeliverInbound("alice", secondPropose); err != nil {
		t.Fatalf("bob DeliverInbound: %v", err)
	}
	if bob.ch.ChainLen() != 0 {
		t.Fatalf("expected bob to reject the discontinuous record, got chain length %d", bob.ch.ChainLen())
	}

	syncReq, ok := bob.DrainOutbound("alice")
	if !ok {
		t.Fatal("expected bob to queue a SyncRequest after detecting discontinuity")
	}
	if err := alice.DeliverInbound("bob", syncReq); err != nil {
		t.Fatalf("alice DeliverInbound(syncReq): %v", err)
	}

	syncResp, ok := alice.DrainOutbound("bob")
	if !ok {
		t.Fatal("expected alice to queue a SyncResponse")
	}
	if err := bob.DeliverInbound("alice", syncResp); err != nil {
		t.Fatalf("bob DeliverInbound(syncResp): %v", err)
	}

	if bob.ch.ChainLen() != 2 {
		t.Fatalf("expected bob to catch up to chain length 2, got %d", bob.ch.ChainLen())
	}
	if !bob.ch.VerifyPrefix(bob.ch.ChainLen()) {
		t.Fatal("expected bob's recovered chain prefix to verify")
	}
}

func TestSessionHeartbeatGetsEchoedResponse(t *testing.T) {
	alice, bob := newTestSessionPair(t)

	alice.enqueueTo("bob", Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1", Seq: 3, HasSeq: true}})
	hb, ok := alice.DrainOutbound("bob")
	if !ok {
		t.Fatal("expected a queued heartbeat")
	}
	if err := bob.DeliverInbound("alice", hb); err != nil {
		t.Fatalf("bob DeliverInbound: %v", err)
	}
	resp, ok := bob.DrainOutbound("alice")
	if !ok {
		t.Fatal("expected bob to echo a HeartbeatResp")
	}
	decoded, _, err := Decode(resp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind != KindHeartbeatResp || !decoded.HeartbeatResp.HasSeq || decoded.HeartbeatResp.Seq != 3 {
		t.Fatalf("unexpected heartbeat response: %+v", decoded.HeartbeatResp)
	}
}

func TestSessionRemovePeerStopsFurtherDrain(t *testing.T) {
	alice, _ := newTestSessionPair(t)
	alice.RemovePeer("bob")
	if _, ok := alice.DrainOutbound("bob"); ok {
		t.Fatal("expected no outbound queue after RemovePeer")
	}
}
