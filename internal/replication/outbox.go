package replication

import "sync"

// DefaultOutboxCapacity bounds each peer's outbound queue (spec §5
// "Backpressure"). It is deliberately small: a peer this far behind needs a
// SyncResponse, not a deeper queue.
const DefaultOutboxCapacity = 64

// Outbox is a per-peer bounded outbound message queue implementing spec
// §5's priority-drop policy: "on overflow, oldest Heartbeat is dropped
// first, then oldest SyncResponse batch; MovePropose is never dropped and
// may block its sender." Any other kind also evicts the oldest Heartbeat,
// then the oldest SyncResponse, and is dropped only when neither is queued.
//
// Structurally this mirrors this module's other mutex-guarded
// backpressure primitive (transport.BandwidthRegulator's token bucket,
// itself adapted from the teacher's client limiter), but the eviction
// policy itself has no teacher analogue: it is a priority queue, not a
// rate limiter.
type Outbox struct {
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool
}

// NewOutbox constructs an outbox with the given capacity. A non-positive
// capacity falls back to DefaultOutboxCapacity.
func NewOutbox(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = DefaultOutboxCapacity
	}
	ob := &Outbox{capacity: capacity}
	ob.cond = sync.NewCond(&ob.mu)
	return ob
}

// Enqueue adds m to the queue, applying spec §5's drop policy on overflow.
// A MovePropose blocks the caller until space frees or the outbox closes,
// rather than being dropped or evicting something else.
func (o *Outbox) Enqueue(m Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for {
		if o.closed {
			return
		}
		if len(o.queue) < o.capacity {
			o.queue = append(o.queue, m)
			o.cond.Signal()
			return
		}
		if o.evictOldestLocked(KindHeartbeat) {
			o.queue = append(o.queue, m)
			o.cond.Signal()
			return
		}
		if o.evictOldestLocked(KindSyncResponse) {
			o.queue = append(o.queue, m)
			o.cond.Signal()
			return
		}
		if m.Kind != KindMovePropose {
			// Nothing droppable and this isn't the one message kind the
			// spec guarantees delivery of: drop m itself.
			return
		}
		o.cond.Wait()
	}
}

func (o *Outbox) evictOldestLocked(kind Kind) bool {
	for i, m := range o.queue {
		if m.Kind == kind {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Dequeue blocks until a message is available or the outbox is closed.
func (o *Outbox) Dequeue() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for len(o.queue) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.queue) == 0 {
		return Message{}, false
	}
	m := o.queue[0]
	o.queue = o.queue[1:]
	o.cond.Signal()
	return m, true
}

// TryDequeue pops the oldest message without blocking, for callers (such
// as Session.DrainOutbound) driven synchronously rather than by a pump
// goroutine.
func (o *Outbox) TryDequeue() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.queue) == 0 {
		return Message{}, false
	}
	m := o.queue[0]
	o.queue = o.queue[1:]
	o.cond.Signal()
	return m, true
}

// Len reports the number of messages currently queued.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close wakes every blocked Enqueue/Dequeue caller; subsequent Enqueue
// calls are no-ops and Dequeue returns ok=false once drained.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cond.Broadcast()
}
