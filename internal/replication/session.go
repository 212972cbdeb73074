package replication

import (
	"errors"
	"sync"
	"time"

	"gochannel/internal/chain"
	"gochannel/internal/channel"
	"gochannel/internal/rules"
)

// Session binds one local GameChannel to its set of peer connections,
// implementing the sync protocol of spec §4.3 on top of the channel's
// submit/ingest primitives. It speaks Message values; turning those into
// bytes on a real wire is the transport layer's job — DeliverInbound and
// DrainOutbound are the only points where Session touches []byte, via
// Decode/Encode.
//
// Session's methods are synchronous and goroutine-free by design: a test
// (or a transport pump) drives the exchange by calling SubmitLocal,
// DrainOutbound, and DeliverInbound directly, without sleeps or channels.
type Session struct {
	gameID string
	ch     *channel.GameChannel
	now    func() time.Time

	mu         sync.Mutex
	outboxes   map[string]*Outbox
	hasPending bool
	pendingSeq uint64
	watchdog   *Watchdog
}

// NewSession constructs a session over ch. ackTimeout configures the
// watchdog (DefaultAckTimeout if non-positive).
func NewSession(ch *channel.GameChannel, ackTimeout time.Duration) *Session {
	s := &Session{
		gameID:   ch.GameID(),
		ch:       ch,
		now:      time.Now,
		outboxes: make(map[string]*Outbox),
	}
	s.watchdog = NewWatchdog(ackTimeout, s.onWatchdogFire)
	return s
}

// WithClock overrides the session's time source for deterministic tests.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// AddPeer registers peerID with a fresh outbound queue. It is a no-op if
// the peer is already known.
func (s *Session) AddPeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outboxes[peerID]; !ok {
		s.outboxes[peerID] = NewOutbox(DefaultOutboxCapacity)
	}
}

// RemovePeer closes and drops peerID's outbound queue.
func (s *Session) RemovePeer(peerID string) {
	s.mu.Lock()
	ob, ok := s.outboxes[peerID]
	delete(s.outboxes, peerID)
	s.mu.Unlock()
	if ok {
		ob.Close()
	}
}

// SubmitLocal validates and appends mv via the underlying channel, arms the
// ACK watchdog, and broadcasts a MovePropose to every known peer.
func (s *Session) SubmitLocal(mv rules.Move) error {
	_, seq, record, err := s.ch.SubmitLocal(mv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.hasPending = true
	s.pendingSeq = seq
	s.mu.Unlock()
	s.watchdog.ArmOnLocalSubmit()

	s.broadcast(Message{
		Kind: KindMovePropose,
		MovePropose: &MovePropose{
			GameID: s.gameID,
			TsMs:   uint64(s.now().UnixMilli()),
			Seq:    seq,
			Record: record,
		},
	})
	return nil
}

// DeliverInbound decodes payload as a single Message and dispatches it per
// spec §4.3's sync protocol.
func (s *Session) DeliverInbound(peerID string, payload []byte) error {
	msg, _, err := Decode(payload)
	if err != nil {
		return err
	}
	return s.handle(peerID, msg)
}

// DrainOutbound pops and encodes the next queued message for peerID, if
// any. It never blocks.
func (s *Session) DrainOutbound(peerID string) ([]byte, bool) {
	s.mu.Lock()
	ob, ok := s.outboxes[peerID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	m, ok := ob.TryDequeue()
	if !ok {
		return nil, false
	}
	return Encode(m), true
}

func (s *Session) handle(peerID string, msg Message) error {
	switch msg.Kind {
	case KindMovePropose:
		return s.handleMovePropose(peerID, msg.MovePropose)
	case KindMoveAck:
		s.handleMoveAck(msg.MoveAck)
	case KindSyncRequest:
		s.handleSyncRequest(peerID, msg.SyncRequest)
	case KindSyncResponse:
		s.handleSyncResponse(peerID, msg.SyncResponse)
	case KindHeartbeat:
		s.handleHeartbeat(peerID, msg.Heartbeat)
	case KindHeartbeatResp, KindStateProof, KindJoin, KindJoinResponse:
		// Not required for the spec's core move-propagation scenarios;
		// accepted and ignored rather than treated as malformed.
	}
	return nil
}

func (s *Session) handleMovePropose(peerID string, mp *MovePropose) error {
	idx, _, err := s.ch.IngestRemoteMove(peerID, mp.Seq, mp.Record)
	if err != nil {
		if errors.Is(err, chain.ErrChainDiscontinuity) {
			s.enqueueTo(peerID, Message{
				Kind: KindSyncRequest,
				SyncRequest: &SyncRequest{
					GameID:    s.gameID,
					TsMs:      uint64(s.now().UnixMilli()),
					FromIndex: uint64(s.ch.ChainLen()),
				},
			})
			return nil
		}
		return err
	}

	s.enqueueTo(peerID, Message{
		Kind: KindMoveAck,
		MoveAck: &MoveAck{
			GameID: s.gameID,
			TsMs:   uint64(s.now().UnixMilli()),
			Seq:    mp.Seq,
			Index:  uint64(idx),
		},
	})
	return nil
}

func (s *Session) handleMoveAck(ack *MoveAck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasPending && ack.Seq == s.pendingSeq {
		s.hasPending = false
		s.watchdog.AckReceived()
	}
}

func (s *Session) handleSyncRequest(peerID string, req *SyncRequest) {
	localLen := uint64(s.ch.ChainLen())
	if req.FromIndex > localLen {
		// The requester is ahead of us: pull its tail instead (spec §4.3
		// sync protocol step 1).
		s.enqueueTo(peerID, Message{
			Kind: KindSyncRequest,
			SyncRequest: &SyncRequest{
				GameID:    s.gameID,
				TsMs:      uint64(s.now().UnixMilli()),
				FromIndex: localLen,
			},
		})
		return
	}

	s.enqueueTo(peerID, Message{
		Kind: KindSyncResponse,
		SyncResponse: &SyncResponse{
			GameID:   s.gameID,
			TsMs:     uint64(s.now().UnixMilli()),
			Records:  s.ch.RecordsFrom(int(req.FromIndex)),
			Snapshot: s.ch.LatestSnapshot(),
		},
	})
}

func (s *Session) handleSyncResponse(peerID string, resp *SyncResponse) {
	// Spec §4.3: a failed record inside a SyncResponse aborts the
	// remainder of the batch without severing the connection; the error
	// itself is not actionable here beyond that.
	_, _ = s.ch.ApplyChainSuffix(peerID, resp.Records)
}

func (s *Session) handleHeartbeat(peerID string, hb *Heartbeat) {
	s.enqueueTo(peerID, Message{
		Kind: KindHeartbeatResp,
		HeartbeatResp: &HeartbeatResp{
			GameID: s.gameID,
			TsMs:   uint64(s.now().UnixMilli()),
			Seq:    hb.Seq,
			HasSeq: hb.HasSeq,
		},
	})
}

// onWatchdogFire asks every known peer to resync from our current tail
// (spec §4.3: "on expiry, the channel issues exactly one SyncRequest").
func (s *Session) onWatchdogFire() {
	s.broadcast(Message{
		Kind: KindSyncRequest,
		SyncRequest: &SyncRequest{
			GameID:    s.gameID,
			TsMs:      uint64(s.now().UnixMilli()),
			FromIndex: uint64(s.ch.ChainLen()),
		},
	})
}

func (s *Session) broadcast(m Message) {
	s.mu.Lock()
	peers := make([]*Outbox, 0, len(s.outboxes))
	for _, ob := range s.outboxes {
		peers = append(peers, ob)
	}
	s.mu.Unlock()
	for _, ob := range peers {
		ob.Enqueue(m)
	}
}

func (s *Session) enqueueTo(peerID string, m Message) {
	s.mu.Lock()
	ob, ok := s.outboxes[peerID]
	s.mu.Unlock()
	if ok {
		ob.Enqueue(m)
	}
}
