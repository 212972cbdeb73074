package transport

import (
	"math"
	"sync"
	"time"
)

// DefaultBandwidthLimitBytesPerSecond caps one peer's outbound throughput
// at 48 kbps (decimal) — generous enough for the replication protocol's
// small per-move frames, tight enough to keep one noisy peer from
// starving the write pump's deadline for everyone else sharing a process.
const DefaultBandwidthLimitBytesPerSecond = 48000.0 / 8.0

// reserveFraction is the slice of a peer's budget held back exclusively
// for non-SyncResponse traffic. A peer mid-catch-up burns through its
// shared budget fast (SyncResponse carries the whole missing chain tail
// plus a snapshot); without a reserve, that same peer's own MoveAck and
// Heartbeat frames would queue up behind its own bulk sync, and the
// watchdog could mistake a throttled ack for a dead link.
const reserveFraction = 0.25

// syncResponseKindByte duplicates the wire value of
// internal/replication.KindSyncResponse (see replication/wire.go's
// Kind/Encode) rather than importing the protocol package: Transport is
// deliberately protocol-agnostic, moving bytes rather than Messages, and
// this is the one discriminant it needs to recognize in order to shape a
// bulk catch-up burst differently from everything else.
const syncResponseKindByte = 4

// BandwidthUsage captures the throttling state for a single peer.
type BandwidthUsage struct {
	PeerID               string
	AvailableBytes       float64
	ReserveBytes         float64
	BytesPerSecond       float64
	ObservedSeconds      float64
	DeniedDeliveries     int64
	LastUpdatedTimestamp time.Time
}

type bandwidthBucket struct {
	tokens  float64
	reserve float64
	last    time.Time
	window  time.Time
	sent    int64
	denied  int64
}

// BandwidthRegulator enforces a token-bucket outbound budget per peer, so
// a peer that falls behind on SyncResponse catch-up doesn't saturate a
// single connection's write pump. AllowFrame additionally carves a small
// reserve lane out of that budget for everything except SyncResponse
// frames, so a peer's own liveness traffic survives its own catch-up
// burst.
type BandwidthRegulator struct {
	mu       sync.Mutex
	buckets  map[string]*bandwidthBucket
	capacity float64
	refill   float64
	now      func() time.Time
}

// NewBandwidthRegulator constructs a regulator enforcing the supplied
// byte rate, falling back to DefaultBandwidthLimitBytesPerSecond.
func NewBandwidthRegulator(targetBytesPerSecond float64, clock func() time.Time) *BandwidthRegulator {
	if targetBytesPerSecond <= 0 {
		targetBytesPerSecond = DefaultBandwidthLimitBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		buckets:  make(map[string]*bandwidthBucket),
		capacity: targetBytesPerSecond,
		refill:   targetBytesPerSecond,
		now:      clock,
	}
}

func (r *BandwidthRegulator) reserveCapacity() float64 { return r.capacity * reserveFraction }

// bucketLocked returns peerID's bucket, seeding a full one — shared
// budget plus reserve lane — on first sight so a join's initial
// SyncResponse can burst out immediately. Callers must hold r.mu.
func (r *BandwidthRegulator) bucketLocked(peerID string, now time.Time) *bandwidthBucket {
	bucket := r.buckets[peerID]
	if bucket == nil {
		bucket = &bandwidthBucket{tokens: r.capacity, reserve: r.reserveCapacity(), last: now, window: now}
		r.buckets[peerID] = bucket
	}
	return bucket
}

func (r *BandwidthRegulator) replenish(bucket *bandwidthBucket, now time.Time) {
	if bucket == nil {
		return
	}
	if now.Before(bucket.last) {
		return
	}
	elapsed := now.Sub(bucket.last).Seconds()
	if elapsed <= 0 {
		bucket.last = now
		return
	}
	bucket.tokens += elapsed * r.refill
	if bucket.tokens > r.capacity {
		bucket.tokens = r.capacity
	}
	bucket.reserve += elapsed * r.refill * reserveFraction
	if reserveCap := r.reserveCapacity(); bucket.reserve > reserveCap {
		bucket.reserve = reserveCap
	}
	bucket.last = now
}

// Allow charges the requested frame size against peerID's shared
// outbound budget, reporting whether the frame may go out now. It has no
// concept of message kind; use AllowFrame when the caller holds the
// actual wire frame and wants the reserve lane honored.
func (r *BandwidthRegulator) Allow(peerID string, payloadBytes int) bool {
	if r == nil || peerID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket := r.bucketLocked(peerID, now)
	r.replenish(bucket, now)

	request := float64(payloadBytes)
	if request > bucket.tokens {
		bucket.denied++
		return false
	}
	bucket.tokens -= request
	bucket.sent += int64(payloadBytes)
	if bucket.window.IsZero() {
		bucket.window = now
	}
	return true
}

// AllowFrame is Allow's frame-aware counterpart. It reads the
// replication wire frame's Kind tag (frame[4], immediately after
// Encode's 4-byte length header) and, for anything other than a
// SyncResponse, first tries to draw from the peer's small dedicated
// reserve instead of the shared budget. A SyncResponse — or any frame
// too short to carry a recognizable Kind tag — is charged against the
// shared budget only, exactly like Allow.
func (r *BandwidthRegulator) AllowFrame(peerID string, frame []byte) bool {
	if r == nil || peerID == "" || len(frame) == 0 {
		return true
	}
	cost := float64(len(frame))

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket := r.bucketLocked(peerID, now)
	r.replenish(bucket, now)

	if kind, ok := frameKind(frame); ok && kind != syncResponseKindByte && cost <= bucket.reserve {
		bucket.reserve -= cost
		bucket.sent += int64(len(frame))
		if bucket.window.IsZero() {
			bucket.window = now
		}
		return true
	}

	if cost > bucket.tokens {
		bucket.denied++
		return false
	}
	bucket.tokens -= cost
	bucket.sent += int64(len(frame))
	if bucket.window.IsZero() {
		bucket.window = now
	}
	return true
}

// frameKind extracts the Kind tag from a length-prefixed replication
// wire frame, reporting false if frame is too short to carry one.
func frameKind(frame []byte) (byte, bool) {
	if len(frame) < 5 {
		return 0, false
	}
	return frame[4], true
}

// Forget removes the token bucket for a disconnected peer.
func (r *BandwidthRegulator) Forget(peerID string) {
	if r == nil || peerID == "" {
		return
	}
	r.mu.Lock()
	delete(r.buckets, peerID)
	r.mu.Unlock()
}

// SnapshotUsage reports the most recent throttling statistics per peer.
func (r *BandwidthRegulator) SnapshotUsage() map[string]BandwidthUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buckets) == 0 {
		return nil
	}

	now := r.now()
	snapshot := make(map[string]BandwidthUsage, len(r.buckets))
	for peerID, bucket := range r.buckets {
		if bucket == nil {
			continue
		}
		r.replenish(bucket, now)

		observed := now.Sub(bucket.window).Seconds()
		if observed <= 0 {
			observed = 0
		}
		rate := 0.0
		if observed > 0 {
			rate = float64(bucket.sent) / observed
		}

		snapshot[peerID] = BandwidthUsage{
			PeerID:               peerID,
			AvailableBytes:       math.Max(bucket.tokens, 0),
			ReserveBytes:         math.Max(bucket.reserve, 0),
			BytesPerSecond:       rate,
			ObservedSeconds:      observed,
			DeniedDeliveries:     bucket.denied,
			LastUpdatedTimestamp: bucket.last,
		}
	}
	if len(snapshot) == 0 {
		return nil
	}
	return snapshot
}
