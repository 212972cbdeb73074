package rules

import "errors"

// ErrIllegalMove is returned by Validate when a move is not legal in the
// supplied state; the channel surfaces it to the caller of submit_local
// unchanged (spec §4.2, §7: IllegalMove).
var ErrIllegalMove = errors.New("illegal move")

// Oracle is the external, pure collaborator the channel consumes to decide
// move legality and captures (spec §6). Implementations must be
// deterministic and side-effect free: no I/O, no shared mutable state.
type Oracle interface {
	// Validate applies mv to state and returns the resulting state plus the
	// list of stones captured by the move. It must not mutate state.
	Validate(state GameStateSnapshot, mv Move) (GameStateSnapshot, []Capture, error)

	// IsTerminal reports whether state represents a finished game (two
	// consecutive passes, or a resignation already recorded).
	IsTerminal(state GameStateSnapshot) bool
}

// DefaultOracle is a minimal Go rules implementation: legal-point placement,
// suicide rejection, and group-liberty capture. It omits ko detection,
// scoring, and handicap stones — those are explicitly out of scope for the
// channel core (spec §1 non-goals delegate "Go rule adjudication" to an
// external oracle; this is the bundled default, not the canonical one).
type DefaultOracle struct{}

// NewDefaultOracle constructs the bundled minimal oracle.
func NewDefaultOracle() *DefaultOracle { return &DefaultOracle{} }

func (DefaultOracle) Validate(state GameStateSnapshot, mv Move) (GameStateSnapshot, []Capture, error) {
	if state.Sealed {
		return state, nil, ErrIllegalMove
	}

	next := state.Clone()

	switch mv.Kind {
	case MovePass:
		next.PassCount++
		next.Moves = append(next.Moves, mv)
		next.ToMove = state.ToMove.Opponent()
		return next, nil, nil

	case MoveResign:
		next.Sealed = true
		next.SealedReason = "resignation"
		next.Moves = append(next.Moves, mv)
		return next, nil, nil

	case MovePlace:
		if mv.Color != Empty && state.ToMove != Empty && mv.Color != state.ToMove {
			return state, nil, ErrIllegalMove
		}
		if int(mv.X) >= state.BoardSize || int(mv.Y) >= state.BoardSize {
			return state, nil, ErrIllegalMove
		}
		if state.At(mv.X, mv.Y) != Empty {
			return state, nil, ErrIllegalMove
		}

		idx := int(mv.Y)*next.BoardSize + int(mv.X)
		next.Board[idx] = mv.Color

		//1.- Remove any opposing groups left with zero liberties by this placement.
		captures := captureDeadGroups(&next, mv.Color.Opponent())

		//2.- Reject suicide: a placement that leaves the placing group with no
		// liberties and captures nothing is illegal.
		if len(captures) == 0 && groupLiberties(next, mv.X, mv.Y) == 0 {
			return state, nil, ErrIllegalMove
		}

		if mv.Color == Black {
			next.Captures.Black += len(captures)
		} else {
			next.Captures.White += len(captures)
		}

		next.PassCount = 0
		next.Moves = append(next.Moves, mv)
		next.ToMove = mv.Color.Opponent()
		return next, captures, nil

	default:
		return state, nil, ErrIllegalMove
	}
}

func (DefaultOracle) IsTerminal(state GameStateSnapshot) bool {
	if state.Sealed {
		return true
	}
	return state.PassCount >= 2
}

// captureDeadGroups removes every group of the given color with zero
// liberties from the board, returning the captured stones.
func captureDeadGroups(state *GameStateSnapshot, color Color) []Capture {
	if color == Empty {
		return nil
	}
	visited := make(map[int]bool)
	var captures []Capture

	for y := 0; y < state.BoardSize; y++ {
		for x := 0; x < state.BoardSize; x++ {
			idx := y*state.BoardSize + x
			if visited[idx] || state.Board[idx] != color {
				continue
			}
			group := floodGroup(*state, uint8(x), uint8(y))
			for _, p := range group {
				visited[p.y*state.BoardSize+p.x] = true
			}
			if groupHasLiberty(*state, group) {
				continue
			}
			for _, p := range group {
				state.Board[p.y*state.BoardSize+p.x] = Empty
				captures = append(captures, Capture{X: uint8(p.x), Y: uint8(p.y), Color: color})
			}
		}
	}
	return captures
}

func groupLiberties(state GameStateSnapshot, x, y uint8) int {
	group := floodGroup(state, x, y)
	if groupHasLiberty(state, group) {
		return 1
	}
	return 0
}

type point struct{ x, y int }

func floodGroup(state GameStateSnapshot, x, y uint8) []point {
	color := state.At(x, y)
	start := point{int(x), int(y)}
	visited := map[point]bool{start: true}
	stack := []point{start}
	var group []point

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		group = append(group, p)
		for _, n := range neighbors(p, state.BoardSize) {
			if visited[n] {
				continue
			}
			if state.Board[n.y*state.BoardSize+n.x] == color {
				visited[n] = true
				stack = append(stack, n)
			}
		}
	}
	return group
}

func groupHasLiberty(state GameStateSnapshot, group []point) bool {
	for _, p := range group {
		for _, n := range neighbors(p, state.BoardSize) {
			if state.Board[n.y*state.BoardSize+n.x] == Empty {
				return true
			}
		}
	}
	return false
}

func neighbors(p point, boardSize int) []point {
	candidates := []point{
		{p.x - 1, p.y}, {p.x + 1, p.y}, {p.x, p.y - 1}, {p.x, p.y + 1},
	}
	out := candidates[:0]
	for _, c := range candidates {
		if c.x >= 0 && c.x < boardSize && c.y >= 0 && c.y < boardSize {
			out = append(out, c)
		}
	}
	return out
}
