package rules

import (
	"errors"
	"testing"
)

func TestValidatePlaceAlternatesTurn(t *testing.T) {
	oracle := NewDefaultOracle()
	state := NewGameStateSnapshot(9)

	next, captures, err := oracle.Validate(state, PlaceMove(4, 4, Black))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(captures) != 0 {
		t.Fatalf("expected no captures, got %v", captures)
	}
	if next.ToMove != White {
		t.Fatalf("expected white to move, got %v", next.ToMove)
	}
	if next.At(4, 4) != Black {
		t.Fatalf("expected black stone at (4,4)")
	}
	if len(next.Moves) != 1 {
		t.Fatalf("expected one recorded move, got %d", len(next.Moves))
	}
}

func TestValidateRejectsOccupiedPoint(t *testing.T) {
	oracle := NewDefaultOracle()
	state := NewGameStateSnapshot(9)
	state, _, err := oracle.Validate(state, PlaceMove(4, 4, Black))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	_, _, err = oracle.Validate(state, PlaceMove(4, 4, White))
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}

func TestValidateCapturesSurroundedStone(t *testing.T) {
	oracle := NewDefaultOracle()
	state := NewGameStateSnapshot(9)

	// Alternating placements that box in a lone white stone at (1,1) from
	// all four sides, with black's final placement springing the capture.
	moves := []Move{
		PlaceMove(8, 8, Black),
		PlaceMove(1, 1, White),
		PlaceMove(0, 1, Black),
		PlaceMove(8, 7, White),
		PlaceMove(2, 1, Black),
		PlaceMove(8, 6, White),
		PlaceMove(1, 0, Black),
		PlaceMove(8, 5, White),
	}
	var err error
	for _, mv := range moves {
		state, _, err = oracle.Validate(state, mv)
		if err != nil {
			t.Fatalf("Validate(%v): %v", mv, err)
		}
	}

	if state.At(1, 1) != White {
		t.Fatalf("expected white stone still on board before the capturing move")
	}

	final, captures, err := oracle.Validate(state, PlaceMove(1, 2, Black))
	if err != nil {
		t.Fatalf("Validate final move: %v", err)
	}
	if len(captures) != 1 || captures[0].X != 1 || captures[0].Y != 1 || captures[0].Color != White {
		t.Fatalf("expected capture of white stone at (1,1), got %v", captures)
	}
	if final.At(1, 1) != Empty {
		t.Fatalf("expected (1,1) to be empty after capture")
	}
	if final.Captures.Black != 1 {
		t.Fatalf("expected black capture counter to be 1, got %d", final.Captures.Black)
	}
}

func TestValidateRejectsSuicide(t *testing.T) {
	oracle := NewDefaultOracle()
	state := NewGameStateSnapshot(3)

	// Black and white alternate placing elsewhere while white boxes in the
	// (0,0) corner from both sides, leaving black no legal suicide play there.
	moves := []Move{
		PlaceMove(2, 2, Black),
		PlaceMove(1, 0, White),
		PlaceMove(2, 1, Black),
		PlaceMove(0, 1, White),
	}
	var err error
	for _, mv := range moves {
		state, _, err = oracle.Validate(state, mv)
		if err != nil {
			t.Fatalf("Validate(%v): %v", mv, err)
		}
	}

	_, _, err = oracle.Validate(state, PlaceMove(0, 0, Black))
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected suicide to be rejected, got %v", err)
	}
}

func TestIsTerminalAfterTwoPasses(t *testing.T) {
	oracle := NewDefaultOracle()
	state := NewGameStateSnapshot(9)

	state, _, err := oracle.Validate(state, PassMove())
	if err != nil {
		t.Fatalf("Validate pass 1: %v", err)
	}
	if oracle.IsTerminal(state) {
		t.Fatal("expected not terminal after a single pass")
	}

	state, _, err = oracle.Validate(state, PassMove())
	if err != nil {
		t.Fatalf("Validate pass 2: %v", err)
	}
	if !oracle.IsTerminal(state) {
		t.Fatal("expected terminal after two consecutive passes")
	}
}

func TestIsTerminalAfterResign(t *testing.T) {
	oracle := NewDefaultOracle()
	state := NewGameStateSnapshot(9)

	state, _, err := oracle.Validate(state, ResignMove())
	if err != nil {
		t.Fatalf("Validate resign: %v", err)
	}
	if !oracle.IsTerminal(state) {
		t.Fatal("expected terminal after resignation")
	}

	if _, _, err := oracle.Validate(state, PlaceMove(0, 0, Black)); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected further moves on sealed state to be illegal, got %v", err)
	}
}

func TestFingerprintChangesWithState(t *testing.T) {
	state := NewGameStateSnapshot(9)
	fp1 := Fingerprint(state)

	oracle := NewDefaultOracle()
	next, _, err := oracle.Validate(state, PlaceMove(4, 4, Black))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	fp2 := Fingerprint(next)

	if fp1 == fp2 {
		t.Fatal("expected fingerprint to change after a move")
	}
	if len(fp2) != 16 {
		t.Fatalf("expected 16 hex digit fingerprint, got %q (%d chars)", fp2, len(fp2))
	}
	if Fingerprint(next) != fp2 {
		t.Fatal("expected fingerprint to be deterministic")
	}
}
