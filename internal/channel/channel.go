// Package channel implements the channel state machine (spec §4.2): the
// single serialization point that funnels local and remote moves through
// the rules oracle and the move chain, maintains the current snapshot,
// and fans out events.
package channel

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"gochannel/internal/chain"
	"gochannel/internal/events"
	"gochannel/internal/rules"
)

// State is one of the channel's lifecycle states (spec §4.2:
// "Initializing → Active → Sealed").
type State uint8

const (
	Initializing State = iota
	Active
	Sealed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case Sealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// PeerSession is the channel's metadata about a currently-reachable peer
// (spec §3: "Created on first contact; expired after inactivity"). The
// channel never owns the connection itself — the transport does.
type PeerSession struct {
	PeerID    string
	LastSeen  time.Time
	LastRxSeq uint64
}

// GameChannel is the single authority for one game's state on this peer
// (spec §2). It owns its MoveChain and ChannelState exclusively; peer
// sessions are tracked but not owned.
type GameChannel struct {
	gameID    string
	boardSize int
	oracle    rules.Oracle
	chainLog  *chain.MoveChain
	signer    ed25519.PrivateKey
	now       func() time.Time

	mu       sync.Mutex
	state    State
	snapshot rules.GameStateSnapshot
	stream   *events.Stream
	dedup    *DedupWindow
	peers    map[string]*PeerSession
	localSeq uint64
}

// New constructs a channel starting from an empty board of boardSize,
// signing mode mode, and the given rules oracle. The channel starts
// Initializing; it becomes Active on the first Subscribe call.
func New(gameID string, boardSize int, oracle rules.Oracle, mode chain.SigningMode) *GameChannel {
	return &GameChannel{
		gameID:    gameID,
		boardSize: boardSize,
		oracle:    oracle,
		chainLog:  chain.New(mode),
		snapshot:  rules.NewGameStateSnapshot(boardSize),
		stream:    events.NewStream(events.Config{}),
		dedup:     NewDedupWindow(DefaultDedupCapacity),
		peers:     make(map[string]*PeerSession),
		now:       time.Now,
	}
}

// WithSigner attaches a signing key; every subsequently submitted local
// record is signed with it. Returns the receiver for chaining.
func (c *GameChannel) WithSigner(priv ed25519.PrivateKey) *GameChannel {
	c.mu.Lock()
	c.signer = priv
	c.mu.Unlock()
	return c
}

// WithClock overrides the channel's time source; tests use this to make
// timestamp-dependent assertions deterministic.
func (c *GameChannel) WithClock(now func() time.Time) *GameChannel {
	c.now = now
	return c
}

// LoadSnapshot installs snap as the channel's current state, e.g. when
// resuming from persistence (spec §4.4 "Load procedure").
func (c *GameChannel) LoadSnapshot(snap rules.GameStateSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snap
	if snap.Sealed {
		c.state = Sealed
	}
}

// GameID returns the channel's game identifier.
func (c *GameChannel) GameID() string { return c.gameID }

// State reports the channel's current lifecycle state.
func (c *GameChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ChainLen returns the number of records appended to the chain so far.
func (c *GameChannel) ChainLen() int { return c.chainLog.Len() }

// VerifyPrefix delegates to the underlying chain (spec `verify_prefix`).
func (c *GameChannel) VerifyPrefix(k int) bool { return c.chainLog.VerifyPrefix(k) }

// Subscribe returns a multi-consumer event subscription (spec
// `subscribe() → Receiver<Event>`). The channel transitions out of
// Initializing on first subscription, per spec §4.2.
func (c *GameChannel) Subscribe() *events.Subscription {
	c.mu.Lock()
	if c.state == Initializing {
		c.state = Active
	}
	c.mu.Unlock()
	return c.stream.Subscribe()
}

// LatestSnapshot returns a cloneable view of current state; it never
// blocks on I/O (spec `latest_snapshot()`).
func (c *GameChannel) LatestSnapshot() rules.GameStateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// AllMoves returns every move applied so far, in chain order (spec
// `all_moves()`).
func (c *GameChannel) AllMoves() []rules.Move {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]rules.Move(nil), c.snapshot.Moves...)
}

// Peers returns a snapshot of known peer sessions.
func (c *GameChannel) Peers() []PeerSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PeerSession, 0, len(c.peers))
	for _, s := range c.peers {
		out = append(out, *s)
	}
	return out
}

// SubmitLocal validates mv with the rules oracle, builds and (if a signer
// is configured) signs a MoveRecord, appends it, updates the snapshot, and
// fans out the resulting events (spec `submit_local`). It returns the new
// chain index, the proposer-assigned sequence number for replication to
// use in MovePropose, and the record itself.
func (c *GameChannel) SubmitLocal(mv rules.Move) (index int, seq uint64, record chain.MoveRecord, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Sealed {
		return 0, 0, chain.MoveRecord{}, ErrChainSealed
	}

	by := c.snapshot.ToMove
	next, captures, err := c.oracle.Validate(c.snapshot, mv)
	if err != nil {
		return 0, 0, chain.MoveRecord{}, err
	}

	record = chain.MoveRecord{
		Move:     mv,
		TsMs:     uint64(c.now().UnixMilli()),
		PrevHash: c.chainLog.TailHash(),
	}
	if c.signer != nil {
		record = chain.Sign(record, c.signer)
	}

	idx, fresh, err := c.chainLog.Append(record)
	if err != nil {
		return 0, 0, chain.MoveRecord{}, err
	}
	if !fresh {
		// A retried identical local submission converges to the original
		// index without emitting a second event (I6).
		return idx, 0, record, nil
	}

	c.localSeq++
	seq = c.localSeq
	c.snapshot = next
	c.stream.PublishMoveMade(mv, by)
	if len(captures) > 0 {
		c.stream.PublishStonesCaptured(captures, by.Opponent())
	}
	if c.oracle.IsTerminal(next) {
		c.sealLocked(terminalReason(next))
	}
	return idx, seq, record, nil
}

// IngestRemoteMove applies an already-decoded remote MoveRecord (spec
// `ingest_remote`, restricted to the move-propagation path; sync/heartbeat
// handling lives in the replication layer, which calls this for each
// record it accepts). duplicate reports whether the pair was already
// applied, in which case callers should still ACK using index.
func (c *GameChannel) IngestRemoteMove(peerID string, seq uint64, record chain.MoveRecord) (index int, duplicate bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Sealed {
		return 0, false, ErrChainSealed
	}

	chainIdx, fresh, err := c.chainLog.Append(record)
	if err != nil {
		return 0, false, err
	}

	c.touchPeerLocked(peerID, seq)

	if !fresh {
		idx, _ := c.dedup.Observe(peerID, seq, chainIdx)
		return idx, true, nil
	}
	c.dedup.Observe(peerID, seq, chainIdx)

	by := c.snapshot.ToMove
	next, captures, validateErr := c.oracle.Validate(c.snapshot, record.Move)
	if validateErr != nil {
		// Spec §4.3/§7: the rules oracle rejecting a remote record already
		// on the chain is a fatal protocol violation, not a recoverable
		// drop — the record is immutable (I2) once appended.
		c.sealLocked("fatal_protocol_violation:" + peerID)
		return chainIdx, false, fmt.Errorf("%w: %v", ErrFatalProtocolViolation, validateErr)
	}

	c.snapshot = next
	c.stream.PublishMoveMade(record.Move, by)
	if len(captures) > 0 {
		c.stream.PublishStonesCaptured(captures, by.Opponent())
	}
	if c.oracle.IsTerminal(next) {
		c.sealLocked(terminalReason(next))
	}
	return chainIdx, false, nil
}

// Seal transitions the channel to Sealed, idempotently (spec `seal(reason)`).
func (c *GameChannel) Seal(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealLocked(reason)
}

// RecordsFrom returns every chain record from index k onward, for building
// a SyncResponse (spec §4.3 sync protocol step 2).
func (c *GameChannel) RecordsFrom(k int) []chain.MoveRecord {
	all := c.chainLog.Records()
	if k < 0 {
		k = 0
	}
	if k >= len(all) {
		return nil
	}
	return append([]chain.MoveRecord(nil), all[k:]...)
}

// ApplyChainSuffix applies records in order, as if each had arrived via
// IngestRemoteMove from peerID, stopping at the first rejected record (spec
// §4.3: "a failed signature or link inside a SyncResponse aborts the batch;
// the remainder is dropped; the connection is not severed"). applied counts
// how many records were accepted without error, newly appended or
// duplicate (duplicates count since they converge successfully).
func (c *GameChannel) ApplyChainSuffix(peerID string, records []chain.MoveRecord) (applied int, err error) {
	seq := c.peerNextSeq(peerID)
	for _, rec := range records {
		if _, _, ingestErr := c.IngestRemoteMove(peerID, seq, rec); ingestErr != nil {
			return applied, ingestErr
		}
		applied++
		seq++
	}
	return applied, nil
}

// peerNextSeq picks the first sequence number to assign to a batch of
// synced records from peerID, continuing on from whatever it last sent us
// so the dedup window's (peer, seq) keys stay distinct per record.
func (c *GameChannel) peerNextSeq(peerID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.peers[peerID]; ok {
		return sess.LastRxSeq + 1
	}
	return 1
}

func (c *GameChannel) sealLocked(reason string) {
	if c.state == Sealed {
		return
	}
	c.state = Sealed
	c.snapshot.Sealed = true
	if c.snapshot.SealedReason == "" {
		c.snapshot.SealedReason = reason
	}
	c.stream.PublishGameFinished(c.snapshot.SealedReason)
}

func (c *GameChannel) touchPeerLocked(peerID string, seq uint64) {
	sess, ok := c.peers[peerID]
	if !ok {
		sess = &PeerSession{PeerID: peerID}
		c.peers[peerID] = sess
	}
	sess.LastSeen = c.now()
	sess.LastRxSeq = seq
}

func terminalReason(next rules.GameStateSnapshot) string {
	if next.SealedReason != "" {
		return next.SealedReason
	}
	return "two_consecutive_passes"
}
