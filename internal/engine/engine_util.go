package engine

import (
	"errors"
	"fmt"
)

// NewRoom opens a session with its creator dealt in and seated first.
func NewRoom(code, creator, connID string, rules Rules) (State, error) {
	if creator == "" {
		return State{}, ErrMissingName
	}
	s := State{
		RoomCode: code,
		Phase:    PhaseWaiting,
		Hands:    map[string]Hand{},
		Pool:     NewPool(rules.Shuffle),
		Conns:    map[string]string{},
		Ledger:   NewLedger(),
		Rules:    rules,
	}
	if err := s.seat(creator); err != nil {
		return State{}, err
	}
	if connID != "" {
		s.Conns[connID] = creator
	}
	return s, nil
}

func ValidRoomCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

type FinalResults struct {
	Scores map[string]int
	Winner string
	Loser  string // empty with fewer than two players
	Rounds int
}

func Finalize(s State) FinalResults {
	res := FinalResults{Scores: s.Ledger.Clone().Scores, Rounds: s.Ledger.Round}
	res.Winner, _ = s.Ledger.Highest(s.Players)
	if len(s.Players) >= 2 {
		res.Loser, _ = s.Ledger.Lowest(s.Players)
	}
	return res
}

// CheckConservation verifies that every kind still adds up to PerKind across pool and hands.
func CheckConservation(s State) error {
	total := s.Pool.Len()
	for _, h := range s.Hands {
		total += len(h)
	}
	if total != PoolSize {
		return fmt.Errorf("room %s: %d chits in play, want %d", s.RoomCode, total, PoolSize)
	}
	for _, k := range Kinds {
		n := s.Pool.Count(k)
		for _, h := range s.Hands {
			n += h.Count(k)
		}
		if n != PerKind {
			return fmt.Errorf("room %s: %d of %s in play, want %d", s.RoomCode, n, k, PerKind)
		}
	}
	return nil
}

func (s State) PlayerFor(connID string) (string, bool) {
	p, ok := s.Conns[connID]
	return p, ok
}

var reasons = []struct {
	err  error
	code string
}{
	{ErrMissingName, "MissingName"},
	{ErrRoomFull, "RoomFull"},
	{ErrNameTaken, "NameTaken"},
	{ErrWrongPhase, "WrongPhase"},
	{ErrNotYourTurn, "NotYourTurn"},
	{ErrChitNotHeld, "ChitNotHeld"},
	{ErrInvalidChit, "InvalidChit"},
	{ErrNoFourOfAKind, "NoFourOfAKind"},
	{ErrUnknownPlayer, "UnknownPlayer"},
	{ErrVictorCannotReact, "VictorCannotReact"},
	{ErrAlreadyReported, "AlreadyReported"},
	{ErrRoundInProgress, "RoundInProgress"},
	{ErrInsufficientPool, "InsufficientPool"},
	{ErrUnsupportedCommand, "UnsupportedCommand"},
}

// Reason maps an engine rejection to its wire reason code.
func Reason(err error) (string, bool) {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code, true
		}
	}
	return "", false
}
