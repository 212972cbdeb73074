// Package replication implements the replication protocol (spec §4.3): the
// messages exchanged between peers to propagate moves, acknowledge them,
// detect loss, and resynchronize, plus the ACK watchdog and per-peer
// outbound backpressure (spec §5) that drive it.
package replication

import (
	"gochannel/internal/chain"
	"gochannel/internal/rules"
)

// Kind discriminates the wire message types (spec §4.3 table).
type Kind uint8

const (
	KindMovePropose Kind = iota + 1
	KindMoveAck
	KindSyncRequest
	KindSyncResponse
	KindHeartbeat
	KindHeartbeatResp
	KindStateProof
	KindJoin
	KindJoinResponse
)

func (k Kind) String() string {
	switch k {
	case KindMovePropose:
		return "move_propose"
	case KindMoveAck:
		return "move_ack"
	case KindSyncRequest:
		return "sync_request"
	case KindSyncResponse:
		return "sync_response"
	case KindHeartbeat:
		return "heartbeat"
	case KindHeartbeatResp:
		return "heartbeat_resp"
	case KindStateProof:
		return "state_proof"
	case KindJoin:
		return "join"
	case KindJoinResponse:
		return "join_response"
	default:
		return "unknown"
	}
}

// MovePropose is sent by the proposer with a newly produced record.
type MovePropose struct {
	GameID string
	TsMs   uint64
	Seq    uint64
	Record chain.MoveRecord
}

// MoveAck acknowledges a MovePropose by its proposer-assigned Seq.
type MoveAck struct {
	GameID string
	TsMs   uint64
	Seq    uint64
	Index  uint64
}

// SyncRequest asks the peer for everything since FromIndex.
type SyncRequest struct {
	GameID    string
	TsMs      uint64
	FromIndex uint64
}

// SyncResponse supplies the missing chain tail plus the current snapshot.
type SyncResponse struct {
	GameID   string
	TsMs     uint64
	Records  []chain.MoveRecord
	Snapshot rules.GameStateSnapshot
}

// Heartbeat is a liveness probe; Seq is optional (HasSeq false ≡ absent).
type Heartbeat struct {
	GameID string
	TsMs   uint64
	Seq    uint64
	HasSeq bool
}

// HeartbeatResp answers a Heartbeat, optionally reporting round-trip time.
type HeartbeatResp struct {
	GameID string
	TsMs   uint64
	Seq    uint64
	HasSeq bool
	RttMs  uint64
	HasRtt bool
}

// StateProof carries a fingerprint for cheap divergence detection.
type StateProof struct {
	GameID      string
	TsMs        uint64
	Fingerprint string
	Index       uint64
}

// Join requests membership in the game.
type Join struct {
	GameID            string
	TsMs              uint64
	PeerID            string
	PlayerName        string
	PreferredColor    rules.Color
	HasPreferredColor bool
}

// JoinResponse answers a Join request.
type JoinResponse struct {
	GameID          string
	TsMs            uint64
	Success         bool
	AssignedColor   rules.Color
	HasAssignedColor bool
	ErrorMessage    string
	HasSnapshot     bool
	Snapshot        rules.GameStateSnapshot
}

// Message is the tagged union of every wire message type. Exactly one of
// the payload fields is non-nil, selected by Kind.
type Message struct {
	Kind          Kind
	MovePropose   *MovePropose
	MoveAck       *MoveAck
	SyncRequest   *SyncRequest
	SyncResponse  *SyncResponse
	Heartbeat     *Heartbeat
	HeartbeatResp *HeartbeatResp
	StateProof    *StateProof
	Join          *Join
	JoinResponse  *JoinResponse
}
