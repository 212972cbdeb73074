package replication

import (
	"testing"
	"time"
)

func TestOutboxFIFOOrdering(t *testing.T) {
	ob := NewOutbox(4)
	ob.Enqueue(Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1", Seq: 1, HasSeq: true}})
	ob.Enqueue(Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1", Seq: 2, HasSeq: true}})

	m1, ok := ob.TryDequeue()
	if !ok || m1.Heartbeat.Seq != 1 {
		t.Fatalf("expected first heartbeat seq 1, got %+v ok=%v", m1, ok)
	}
	m2, ok := ob.TryDequeue()
	if !ok || m2.Heartbeat.Seq != 2 {
		t.Fatalf("expected second heartbeat seq 2, got %+v ok=%v", m2, ok)
	}
	if _, ok := ob.TryDequeue(); ok {
		t.Fatal("expected empty outbox")
	}
}

func TestOutboxEvictsOldestHeartbeatBeforeSyncResponse(t *testing.T) {
	ob := NewOutbox(2)
	ob.Enqueue(Message{Kind: KindSyncResponse, SyncResponse: &SyncResponse{GameID: "g1"}})
	ob.Enqueue(Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1"}})

	// Queue full (SyncResponse, Heartbeat). A third Heartbeat must evict the
	// queued Heartbeat first, keeping the SyncResponse.
	ob.Enqueue(Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1", Seq: 9, HasSeq: true}})

	if got := ob.Len(); got != 2 {
		t.Fatalf("expected length 2, got %d", got)
	}
	m1, _ := ob.TryDequeue()
	if m1.Kind != KindSyncResponse {
		t.Fatalf("expected SyncResponse to survive, got %s", m1.Kind)
	}
	m2, _ := ob.TryDequeue()
	if m2.Kind != KindHeartbeat || m2.Heartbeat.Seq != 9 {
		t.Fatalf("expected the newest heartbeat, got %+v", m2)
	}
}

func TestOutboxEvictsSyncResponseWhenNoHeartbeatQueued(t *testing.T) {
	ob := NewOutbox(1)
	ob.Enqueue(Message{Kind: KindSyncResponse, SyncResponse: &SyncResponse{GameID: "g1", TsMs: 1}})
	ob.Enqueue(Message{Kind: KindSyncResponse, SyncResponse: &SyncResponse{GameID: "g1", TsMs: 2}})

	if got := ob.Len(); got != 1 {
		t.Fatalf("expected length 1, got %d", got)
	}
	m, _ := ob.TryDequeue()
	if m.SyncResponse.TsMs != 2 {
		t.Fatalf("expected the newer SyncResponse to survive, got %+v", m.SyncResponse)
	}
}

func TestOutboxDropsLowPriorityWhenNothingDroppable(t *testing.T) {
	ob := NewOutbox(1)
	ob.Enqueue(Message{Kind: KindMovePropose, MovePropose: &MovePropose{GameID: "g1", Seq: 1}})
	// Nothing droppable (no Heartbeat/SyncResponse queued) and this is not a
	// MovePropose, so it is silently dropped.
	ob.Enqueue(Message{Kind: KindStateProof, StateProof: &StateProof{GameID: "g1"}})

	if got := ob.Len(); got != 1 {
		t.Fatalf("expected length 1 (drop, not evict), got %d", got)
	}
	m, _ := ob.TryDequeue()
	if m.Kind != KindMovePropose {
		t.Fatalf("expected the MovePropose to survive, got %s", m.Kind)
	}
}

func TestOutboxMoveProposeBlocksUntilSpaceFrees(t *testing.T) {
	ob := NewOutbox(1)
	ob.Enqueue(Message{Kind: KindMovePropose, MovePropose: &MovePropose{GameID: "g1", Seq: 1}})

	done := make(chan struct{})
	go func() {
		ob.Enqueue(Message{Kind: KindMovePropose, MovePropose: &MovePropose{GameID: "g1", Seq: 2}})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected the second MovePropose to block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := ob.TryDequeue(); !ok {
		t.Fatal("expected to dequeue the first MovePropose")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the blocked Enqueue to complete after space freed")
	}
}

func TestOutboxCloseUnblocksDequeue(t *testing.T) {
	ob := NewOutbox(4)
	done := make(chan bool)
	go func() {
		_, ok := ob.Dequeue()
		done <- ok
	}()
	ob.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected Dequeue to report ok=false after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("expected Close to unblock the waiting Dequeue")
	}
}
