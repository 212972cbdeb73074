// Package rules defines the external rules-oracle interface the channel core
// consumes (spec §6) together with a minimal default implementation used to
// exercise submit_local/ingest_remote end to end. Go rule adjudication detail
// (scoring, ko superko history, handicap) is explicitly out of scope; this
// package implements just enough legality/capture logic to drive the channel.
package rules

import "fmt"

// Color is a stone color, or the absence of one on an empty point.
type Color uint8

const (
	Empty Color = iota
	Black
	White
)

// Opponent returns the other playing color. Calling it on Empty is a
// programmer error and panics, since no caller should need an opponent of
// "no color".
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		panic("rules: Opponent called on Empty color")
	}
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// MoveKind discriminates the three possible move shapes. Per spec §9 ("Move
// enum duality") this package carries exactly one representation.
type MoveKind uint8

const (
	MovePlace MoveKind = iota
	MovePass
	MoveResign
)

// Move is a single semantic action a player takes: placing a stone, passing,
// or resigning.
type Move struct {
	Kind  MoveKind
	X, Y  uint8
	Color Color
}

// PlaceMove constructs a Place move.
func PlaceMove(x, y uint8, color Color) Move {
	return Move{Kind: MovePlace, X: x, Y: y, Color: color}
}

// PassMove constructs a Pass move.
func PassMove() Move { return Move{Kind: MovePass} }

// ResignMove constructs a Resign move.
func ResignMove() Move { return Move{Kind: MoveResign} }

func (m Move) String() string {
	switch m.Kind {
	case MovePlace:
		return fmt.Sprintf("Place(%d,%d,%s)", m.X, m.Y, m.Color)
	case MovePass:
		return "Pass"
	case MoveResign:
		return "Resign"
	default:
		return "Unknown"
	}
}

// Captures is the canonical per-color capture counter (spec §9 resolves the
// source's captures-vs-prisoners ambiguity in favor of "captures" — see
// DESIGN.md).
type Captures struct {
	Black int
	White int
}

// Capture identifies one stone removed from the board by a Place move.
type Capture struct {
	X, Y  uint8
	Color Color
}

// GameStateSnapshot is the materialized state at some chain index. It is
// derived and re-computable from the chain plus the rules oracle (I5); it is
// never the system of record on its own.
type GameStateSnapshot struct {
	BoardSize    int
	Board        []Color // row-major, length BoardSize*BoardSize
	ToMove       Color
	Captures     Captures
	PassCount    int
	Moves        []Move
	Sealed       bool
	SealedReason string
}

// NewGameStateSnapshot builds the empty initial state for a board of the
// given size, black to move.
func NewGameStateSnapshot(boardSize int) GameStateSnapshot {
	return GameStateSnapshot{
		BoardSize: boardSize,
		Board:     make([]Color, boardSize*boardSize),
		ToMove:    Black,
	}
}

// At returns the color occupying (x, y).
func (s GameStateSnapshot) At(x, y uint8) Color {
	return s.Board[int(y)*s.BoardSize+int(x)]
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the channel's authoritative state.
func (s GameStateSnapshot) Clone() GameStateSnapshot {
	out := s
	out.Board = append([]Color(nil), s.Board...)
	out.Moves = append([]Move(nil), s.Moves...)
	return out
}
