package replication

import "encoding/json"

// debugMessage mirrors Message for the debug JSON encoding, rendering
// Kind as its name instead of a bare integer discriminant.
type debugMessage struct {
	Kind          string         `json:"kind"`
	MovePropose   *MovePropose   `json:"move_propose,omitempty"`
	MoveAck       *MoveAck       `json:"move_ack,omitempty"`
	SyncRequest   *SyncRequest   `json:"sync_request,omitempty"`
	SyncResponse  *SyncResponse  `json:"sync_response,omitempty"`
	Heartbeat     *Heartbeat     `json:"heartbeat,omitempty"`
	HeartbeatResp *HeartbeatResp `json:"heartbeat_resp,omitempty"`
	StateProof    *StateProof    `json:"state_proof,omitempty"`
	Join          *Join          `json:"join,omitempty"`
	JoinResponse  *JoinResponse  `json:"join_response,omitempty"`
}

func toDebugMessage(m Message) debugMessage {
	return debugMessage{
		Kind:          m.Kind.String(),
		MovePropose:   m.MovePropose,
		MoveAck:       m.MoveAck,
		SyncRequest:   m.SyncRequest,
		SyncResponse:  m.SyncResponse,
		Heartbeat:     m.Heartbeat,
		HeartbeatResp: m.HeartbeatResp,
		StateProof:    m.StateProof,
		Join:          m.Join,
		JoinResponse:  m.JoinResponse,
	}
}

// DebugJSON renders m as indented, human-readable JSON. It is never used
// on the wire — Encode/Decode's fixed binary framing (spec §6) is
// byte-exact and mandatory — this exists solely for operator tooling
// ("channelctl inspect"), the Go analogue of the original
// implementation's JSON/CBOR wire-encoding duality in messages.rs.
func DebugJSON(m Message) ([]byte, error) {
	return json.MarshalIndent(toDebugMessage(m), "", "  ")
}

// InspectFrame decodes one length-prefixed wire frame, as produced by
// Encode, and renders it via DebugJSON, letting an operator turn a
// captured or hex-pasted frame into something readable without hand
// decoding the binary layout.
func InspectFrame(frame []byte) ([]byte, error) {
	msg, _, err := Decode(frame)
	if err != nil {
		return nil, err
	}
	return DebugJSON(msg)
}
