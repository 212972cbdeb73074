package replication

import (
	"testing"

	"gochannel/internal/chain"
	"gochannel/internal/rules"
)

func TestEncodeDecodeRoundTripMovePropose(t *testing.T) {
	rec := chain.MoveRecord{
		Move:      rules.PlaceMove(3, 4, rules.Black),
		TsMs:      1234,
		PrevHash:  make([]byte, chain.HashSize),
		Signature: []byte("sig"),
		Signer:    []byte("signer"),
	}
	msg := Message{
		Kind: KindMovePropose,
		MovePropose: &MovePropose{
			GameID: "g1",
			TsMs:   9999,
			Seq:    7,
			Record: rec,
		},
	}

	encoded := Encode(msg)
	decoded, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("expected to consume %d bytes, got %d", len(encoded), n)
	}
	if decoded.Kind != KindMovePropose {
		t.Fatalf("expected KindMovePropose, got %s", decoded.Kind)
	}
	mp := decoded.MovePropose
	if mp.GameID != "g1" || mp.Seq != 7 || mp.TsMs != 9999 {
		t.Fatalf("unexpected envelope: %+v", mp)
	}
	if mp.Record.Move.X != 3 || mp.Record.Move.Y != 4 || mp.Record.Move.Color != rules.Black {
		t.Fatalf("unexpected move: %+v", mp.Record.Move)
	}
	if string(mp.Record.Signature) != "sig" || string(mp.Record.Signer) != "signer" {
		t.Fatalf("unexpected signature fields: %+v", mp.Record)
	}
}

func TestEncodeDecodeRoundTripPassAndResign(t *testing.T) {
	for _, mv := range []rules.Move{rules.PassMove(), rules.ResignMove()} {
		rec := chain.MoveRecord{Move: mv, TsMs: 1}
		msg := Message{Kind: KindMovePropose, MovePropose: &MovePropose{GameID: "g1", Seq: 1, Record: rec}}
		decoded, _, err := Decode(Encode(msg))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.MovePropose.Record.Move.Kind != mv.Kind {
			t.Fatalf("expected kind %v, got %v", mv.Kind, decoded.MovePropose.Record.Move.Kind)
		}
	}
}

func TestEncodeDecodeRoundTripSyncResponseWithSnapshot(t *testing.T) {
	snap := rules.NewGameStateSnapshot(9)
	snap.ToMove = rules.White
	snap.Moves = []rules.Move{rules.PlaceMove(0, 0, rules.Black)}
	snap.Captures = rules.Captures{Black: 1, White: 2}
	snap.Board[0] = rules.Black

	msg := Message{
		Kind: KindSyncResponse,
		SyncResponse: &SyncResponse{
			GameID: "g1",
			TsMs:   42,
			Records: []chain.MoveRecord{
				{Move: rules.PlaceMove(0, 0, rules.Black), TsMs: 1},
			},
			Snapshot: snap,
		},
	}

	decoded, _, err := Decode(Encode(msg))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	sr := decoded.SyncResponse
	if len(sr.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sr.Records))
	}
	if sr.Snapshot.ToMove != rules.White || sr.Snapshot.Captures.White != 2 {
		t.Fatalf("unexpected snapshot: %+v", sr.Snapshot)
	}
	if sr.Snapshot.Board[0] != rules.Black {
		t.Fatalf("expected board[0] == Black, got %v", sr.Snapshot.Board[0])
	}
}

func TestEncodeDecodeRoundTripHeartbeatOptionalFields(t *testing.T) {
	withSeq := Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1", Seq: 5, HasSeq: true}}
	decoded, _, err := Decode(Encode(withSeq))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Heartbeat.HasSeq || decoded.Heartbeat.Seq != 5 {
		t.Fatalf("expected HasSeq true, Seq 5, got %+v", decoded.Heartbeat)
	}

	withoutSeq := Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1"}}
	decoded2, _, err := Decode(Encode(withoutSeq))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded2.Heartbeat.HasSeq {
		t.Fatalf("expected HasSeq false, got %+v", decoded2.Heartbeat)
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	encoded := Encode(Message{Kind: KindSyncRequest, SyncRequest: &SyncRequest{GameID: "g1", FromIndex: 3}})
	if _, _, err := Decode(encoded[:len(encoded)-2]); err == nil {
		t.Fatal("expected an error decoding a truncated frame")
	}
}

func TestDecodeTwoFramesFromOneStream(t *testing.T) {
	a := Encode(Message{Kind: KindHeartbeat, Heartbeat: &Heartbeat{GameID: "g1"}})
	b := Encode(Message{Kind: KindMoveAck, MoveAck: &MoveAck{GameID: "g1", Seq: 2, Index: 1}})
	stream := append(append([]byte(nil), a...), b...)

	first, n1, err := Decode(stream)
	if err != nil {
		t.Fatalf("Decode first: %v", err)
	}
	if first.Kind != KindHeartbeat {
		t.Fatalf("expected heartbeat first, got %s", first.Kind)
	}
	second, _, err := Decode(stream[n1:])
	if err != nil {
		t.Fatalf("Decode second: %v", err)
	}
	if second.Kind != KindMoveAck || second.MoveAck.Index != 1 {
		t.Fatalf("unexpected second message: %+v", second)
	}
}
