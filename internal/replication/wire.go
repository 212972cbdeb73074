package replication

import (
	"bytes"
	"encoding/binary"
	"io"

	"gochannel/internal/chain"
	"gochannel/internal/rules"
)

// Encode serializes m into a length-prefixed frame per spec §6: a 4-byte
// little-endian length header followed by the message body. All integer
// fields within the body are little-endian, matching the canonical record
// encoding in internal/chain.
func Encode(m Message) []byte {
	body := encodeBody(m)
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

// Decode reads exactly one length-prefixed frame from the front of data and
// returns the decoded message plus the number of bytes consumed, so callers
// reading from a byte stream can advance past it.
func Decode(data []byte) (Message, int, error) {
	if len(data) < 4 {
		return Message{}, 0, ErrMalformedMessage
	}
	n := binary.LittleEndian.Uint32(data[:4])
	if uint64(len(data)) < 4+uint64(n) {
		return Message{}, 0, ErrMalformedMessage
	}
	body := data[4 : 4+n]
	msg, err := decodeBody(body)
	if err != nil {
		return Message{}, 0, err
	}
	return msg, 4 + int(n), nil
}

func encodeBody(m Message) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(byte(m.Kind))

	switch m.Kind {
	case KindMovePropose:
		mp := m.MovePropose
		writeString(buf, mp.GameID)
		writeUint64(buf, mp.TsMs)
		writeUint64(buf, mp.Seq)
		writeRecord(buf, mp.Record)
	case KindMoveAck:
		a := m.MoveAck
		writeString(buf, a.GameID)
		writeUint64(buf, a.TsMs)
		writeUint64(buf, a.Seq)
		writeUint64(buf, a.Index)
	case KindSyncRequest:
		r := m.SyncRequest
		writeString(buf, r.GameID)
		writeUint64(buf, r.TsMs)
		writeUint64(buf, r.FromIndex)
	case KindSyncResponse:
		r := m.SyncResponse
		writeString(buf, r.GameID)
		writeUint64(buf, r.TsMs)
		writeUint32(buf, uint32(len(r.Records)))
		for _, rec := range r.Records {
			writeRecord(buf, rec)
		}
		writeSnapshot(buf, r.Snapshot)
	case KindHeartbeat:
		h := m.Heartbeat
		writeString(buf, h.GameID)
		writeUint64(buf, h.TsMs)
		writeOptionalUint64(buf, h.Seq, h.HasSeq)
	case KindHeartbeatResp:
		h := m.HeartbeatResp
		writeString(buf, h.GameID)
		writeUint64(buf, h.TsMs)
		writeOptionalUint64(buf, h.Seq, h.HasSeq)
		writeOptionalUint64(buf, h.RttMs, h.HasRtt)
	case KindStateProof:
		sp := m.StateProof
		writeString(buf, sp.GameID)
		writeUint64(buf, sp.TsMs)
		writeString(buf, sp.Fingerprint)
		writeUint64(buf, sp.Index)
	case KindJoin:
		j := m.Join
		writeString(buf, j.GameID)
		writeUint64(buf, j.TsMs)
		writeString(buf, j.PeerID)
		writeString(buf, j.PlayerName)
		writeOptionalByte(buf, byte(j.PreferredColor), j.HasPreferredColor)
	case KindJoinResponse:
		jr := m.JoinResponse
		writeString(buf, jr.GameID)
		writeUint64(buf, jr.TsMs)
		writeBool(buf, jr.Success)
		writeOptionalByte(buf, byte(jr.AssignedColor), jr.HasAssignedColor)
		writeString(buf, jr.ErrorMessage)
		writeBool(buf, jr.HasSnapshot)
		if jr.HasSnapshot {
			writeSnapshot(buf, jr.Snapshot)
		}
	}
	return buf.Bytes()
}

func decodeBody(body []byte) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = Message{}, ErrMalformedMessage
		}
	}()

	r := bytes.NewReader(body)
	kindByte, readErr := r.ReadByte()
	if readErr != nil {
		return Message{}, ErrMalformedMessage
	}
	kind := Kind(kindByte)

	switch kind {
	case KindMovePropose:
		gameID := readString(r)
		ts := readUint64(r)
		seq := readUint64(r)
		rec := readRecord(r)
		return Message{Kind: kind, MovePropose: &MovePropose{GameID: gameID, TsMs: ts, Seq: seq, Record: rec}}, nil
	case KindMoveAck:
		gameID := readString(r)
		ts := readUint64(r)
		seq := readUint64(r)
		idx := readUint64(r)
		return Message{Kind: kind, MoveAck: &MoveAck{GameID: gameID, TsMs: ts, Seq: seq, Index: idx}}, nil
	case KindSyncRequest:
		gameID := readString(r)
		ts := readUint64(r)
		from := readUint64(r)
		return Message{Kind: kind, SyncRequest: &SyncRequest{GameID: gameID, TsMs: ts, FromIndex: from}}, nil
	case KindSyncResponse:
		gameID := readString(r)
		ts := readUint64(r)
		count := readUint32(r)
		records := make([]chain.MoveRecord, 0, count)
		for i := uint32(0); i < count; i++ {
			records = append(records, readRecord(r))
		}
		snap := readSnapshot(r)
		return Message{Kind: kind, SyncResponse: &SyncResponse{GameID: gameID, TsMs: ts, Records: records, Snapshot: snap}}, nil
	case KindHeartbeat:
		gameID := readString(r)
		ts := readUint64(r)
		seq, hasSeq := readOptionalUint64(r)
		return Message{Kind: kind, Heartbeat: &Heartbeat{GameID: gameID, TsMs: ts, Seq: seq, HasSeq: hasSeq}}, nil
	case KindHeartbeatResp:
		gameID := readString(r)
		ts := readUint64(r)
		seq, hasSeq := readOptionalUint64(r)
		rtt, hasRtt := readOptionalUint64(r)
		return Message{Kind: kind, HeartbeatResp: &HeartbeatResp{GameID: gameID, TsMs: ts, Seq: seq, HasSeq: hasSeq, RttMs: rtt, HasRtt: hasRtt}}, nil
	case KindStateProof:
		gameID := readString(r)
		ts := readUint64(r)
		fp := readString(r)
		idx := readUint64(r)
		return Message{Kind: kind, StateProof: &StateProof{GameID: gameID, TsMs: ts, Fingerprint: fp, Index: idx}}, nil
	case KindJoin:
		gameID := readString(r)
		ts := readUint64(r)
		peerID := readString(r)
		name := readString(r)
		color, hasColor := readOptionalByte(r)
		return Message{Kind: kind, Join: &Join{GameID: gameID, TsMs: ts, PeerID: peerID, PlayerName: name, PreferredColor: rules.Color(color), HasPreferredColor: hasColor}}, nil
	case KindJoinResponse:
		gameID := readString(r)
		ts := readUint64(r)
		success := readBool(r)
		color, hasColor := readOptionalByte(r)
		errMsg := readString(r)
		hasSnapshot := readBool(r)
		var snap rules.GameStateSnapshot
		if hasSnapshot {
			snap = readSnapshot(r)
		}
		return Message{Kind: kind, JoinResponse: &JoinResponse{GameID: gameID, TsMs: ts, Success: success, AssignedColor: rules.Color(color), HasAssignedColor: hasColor, ErrorMessage: errMsg, HasSnapshot: hasSnapshot, Snapshot: snap}}, nil
	default:
		return Message{}, ErrMalformedMessage
	}
}

// --- primitive field codecs ---
//
// Reads panic on short input; decodeBody recovers and reports
// ErrMalformedMessage, since a truncated frame is definitionally malformed.

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) uint32 {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint32(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) uint64 {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint64(b[:])
}

func writeOptionalUint64(buf *bytes.Buffer, v uint64, present bool) {
	writeBool(buf, present)
	if present {
		writeUint64(buf, v)
	}
}

func readOptionalUint64(r *bytes.Reader) (uint64, bool) {
	if !readBool(r) {
		return 0, false
	}
	return readUint64(r), true
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) bool {
	b, err := r.ReadByte()
	if err != nil {
		panic(err)
	}
	return b != 0
}

func writeOptionalByte(buf *bytes.Buffer, v byte, present bool) {
	writeBool(buf, present)
	if present {
		buf.WriteByte(v)
	}
}

func readOptionalByte(r *bytes.Reader) (byte, bool) {
	if !readBool(r) {
		return 0, false
	}
	b, err := r.ReadByte()
	if err != nil {
		panic(err)
	}
	return b, true
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) string {
	n := readUint32(r)
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		panic(err)
	}
	return string(b)
}

func writeByteSlice(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readByteSlice(r *bytes.Reader) []byte {
	n := readUint32(r)
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		panic(err)
	}
	return b
}

// writeMove encodes mv using the exact discriminant scheme spec §6 fixes:
// 0x00 Place(x,y,color), 0x01 Pass, 0x02 Resign.
func writeMove(buf *bytes.Buffer, mv rules.Move) {
	switch mv.Kind {
	case rules.MovePlace:
		buf.WriteByte(0x00)
		buf.WriteByte(mv.X)
		buf.WriteByte(mv.Y)
		buf.WriteByte(byte(mv.Color))
	case rules.MovePass:
		buf.WriteByte(0x01)
	case rules.MoveResign:
		buf.WriteByte(0x02)
	}
}

func readMove(r *bytes.Reader) rules.Move {
	disc, err := r.ReadByte()
	if err != nil {
		panic(err)
	}
	switch disc {
	case 0x00:
		x, err := r.ReadByte()
		if err != nil {
			panic(err)
		}
		y, err := r.ReadByte()
		if err != nil {
			panic(err)
		}
		c, err := r.ReadByte()
		if err != nil {
			panic(err)
		}
		return rules.PlaceMove(x, y, rules.Color(c))
	case 0x01:
		return rules.PassMove()
	case 0x02:
		return rules.ResignMove()
	default:
		panic(ErrMalformedMessage)
	}
}

func writeRecord(buf *bytes.Buffer, rec chain.MoveRecord) {
	writeMove(buf, rec.Move)
	writeUint64(buf, rec.TsMs)
	writeByteSlice(buf, rec.PrevHash)
	writeByteSlice(buf, rec.Signature)
	writeByteSlice(buf, rec.Signer)
	writeOptionalByte(buf, tagOrZero(rec.Tag), rec.Tag != nil)
}

func readRecord(r *bytes.Reader) chain.MoveRecord {
	mv := readMove(r)
	ts := readUint64(r)
	prevHash := readByteSlice(r)
	sig := readByteSlice(r)
	signer := readByteSlice(r)
	tagByte, hasTag := readOptionalByte(r)
	rec := chain.MoveRecord{Move: mv, TsMs: ts, PrevHash: prevHash, Signature: sig, Signer: signer}
	if hasTag {
		t := tagByte
		rec.Tag = &t
	}
	return rec
}

func tagOrZero(tag *byte) byte {
	if tag == nil {
		return 0
	}
	return *tag
}

func writeSnapshot(buf *bytes.Buffer, s rules.GameStateSnapshot) {
	writeUint32(buf, uint32(s.BoardSize))
	buf.WriteByte(byte(s.ToMove))
	writeUint32(buf, uint32(s.Captures.Black))
	writeUint32(buf, uint32(s.Captures.White))
	writeUint32(buf, uint32(s.PassCount))
	writeBool(buf, s.Sealed)
	writeString(buf, s.SealedReason)
	writeUint32(buf, uint32(len(s.Moves)))
	for _, mv := range s.Moves {
		writeMove(buf, mv)
	}
	writeUint32(buf, uint32(len(s.Board)))
	for _, c := range s.Board {
		buf.WriteByte(byte(c))
	}
}

func readSnapshot(r *bytes.Reader) rules.GameStateSnapshot {
	boardSize := readUint32(r)
	toMove := readColor(r)
	capturesBlack := readUint32(r)
	capturesWhite := readUint32(r)
	passCount := readUint32(r)
	sealed := readBool(r)
	sealedReason := readString(r)
	movesCount := readUint32(r)
	moves := make([]rules.Move, 0, movesCount)
	for i := uint32(0); i < movesCount; i++ {
		moves = append(moves, readMove(r))
	}
	boardLen := readUint32(r)
	board := make([]rules.Color, boardLen)
	for i := range board {
		board[i] = readColor(r)
	}
	return rules.GameStateSnapshot{
		BoardSize:    int(boardSize),
		Board:        board,
		ToMove:       toMove,
		Captures:     rules.Captures{Black: int(capturesBlack), White: int(capturesWhite)},
		PassCount:    int(passCount),
		Moves:        moves,
		Sealed:       sealed,
		SealedReason: sealedReason,
	}
}

func readColor(r *bytes.Reader) rules.Color {
	b, err := r.ReadByte()
	if err != nil {
		panic(err)
	}
	return rules.Color(b)
}
