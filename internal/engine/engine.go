package engine

import (
	"errors"
	"maps"
	"slices"
)

var ErrMissingName = errors.New("player name is required")
var ErrRoomFull = errors.New("room is full")
var ErrNameTaken = errors.New("player name already in use")
var ErrWrongPhase = errors.New("action not allowed in current phase")
var ErrNotYourTurn = errors.New("not your turn")
var ErrChitNotHeld = errors.New("chit not in hand")
var ErrInvalidChit = errors.New("unknown chit")
var ErrNoFourOfAKind = errors.New("hand has no four of a kind")
var ErrUnknownPlayer = errors.New("player not seated in room")
var ErrVictorCannotReact = errors.New("victor does not stack")
var ErrAlreadyReported = errors.New("reaction already reported")
var ErrRoundInProgress = errors.New("round still in progress")
var ErrInsufficientPool = errors.New("not enough chits in pool")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseReaction Phase = "reaction"
)

// State is one room's session. Apply never mutates its input.
type State struct {
	RoomCode string
	Phase    Phase
	Players  []string // join order is turn order
	Hands    map[string]Hand
	Current  string
	Victor   string

	Reactions     []Reaction // report order
	ReactionStart int64      // ms since epoch, server clock
	Scored        bool

	Pool   Pool
	Conns  map[string]string // connection id -> player
	Ledger Ledger
	Rules  Rules
}

type Rules struct {
	Shuffle Shuffler
}

type CommandType string

const (
	CmdJoin            CommandType = "JoinRoom"
	CmdSelectChit      CommandType = "SelectChit"
	CmdDeclareVictory  CommandType = "DeclareVictory"
	CmdStackHand       CommandType = "StackHand"
	CmdReactionTimeout CommandType = "ReactionTimeout"
	CmdRestart         CommandType = "RestartGame"
)

/*
	CmdJoin            -> EvtPlayerJoined -> EvtGameStarted (4th seat)
	CmdSelectChit      -> EvtChitPassed
	CmdDeclareVictory  -> EvtVictoryDeclared
	CmdStackHand       -> EvtReactionRecorded -> EvtRoundScored (last reactor)
	CmdReactionTimeout -> EvtReactionForfeited... -> EvtRoundScored
	CmdRestart         -> EvtRoundRestarted -> EvtGameStarted (4 seats)
*/

type Command struct {
	Type         CommandType
	Player       string
	ConnID       string
	Chit         Kind
	At           int64 // server clock, ms since epoch
	ReactionTime int64 // client clock, ms since epoch
}

type EventType string

const (
	EvtPlayerJoined      EventType = "PlayerJoined"
	EvtGameStarted       EventType = "GameStarted"
	EvtChitPassed        EventType = "ChitPassed"
	EvtVictoryDeclared   EventType = "VictoryDeclared"
	EvtReactionRecorded  EventType = "ReactionRecorded"
	EvtReactionForfeited EventType = "ReactionForfeited"
	EvtRoundScored       EventType = "RoundScored"
	EvtRoundRestarted    EventType = "RoundRestarted"
)

type Event struct {
	Type      EventType
	Player    string
	To        string
	Chit      Kind
	ElapsedMs int64
	Result    *RoundResult
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		return join(s, cmd)
	case CmdSelectChit:
		return selectChit(s, cmd)
	case CmdDeclareVictory:
		return declareVictory(s, cmd)
	case CmdStackHand:
		return stackHand(s, cmd)
	case CmdReactionTimeout:
		return expireReactions(s)
	case CmdRestart:
		return restart(s)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func join(s State, cmd Command) ([]Event, State, error) {
	if cmd.Player == "" {
		return nil, s, ErrMissingName
	}
	if len(s.Players) >= SeatCount {
		return nil, s, ErrRoomFull
	}
	if slices.Contains(s.Players, cmd.Player) {
		return nil, s, ErrNameTaken
	}
	if s.Phase != PhaseWaiting {
		return nil, s, ErrWrongPhase
	}

	next := s.Clone()
	if err := next.seat(cmd.Player); err != nil {
		return nil, s, err
	}
	if cmd.ConnID != "" {
		next.Conns[cmd.ConnID] = cmd.Player
	}

	events := []Event{{Type: EvtPlayerJoined, Player: cmd.Player}}
	if ev, ok := next.startIfFull(); ok {
		events = append(events, ev)
	}
	return events, next, nil
}

func selectChit(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhasePlaying {
		return nil, s, ErrWrongPhase
	}
	if cmd.Player != s.Current {
		return nil, s, ErrNotYourTurn
	}
	if _, ok := ParseKind(string(cmd.Chit)); !ok {
		return nil, s, ErrInvalidChit
	}
	if !s.Hands[cmd.Player].Contains(cmd.Chit) {
		return nil, s, ErrChitNotHeld
	}

	to := successor(s.Players, cmd.Player)
	next := s.Clone()
	next.Hands[cmd.Player], _ = next.Hands[cmd.Player].Without(cmd.Chit)
	next.Hands[to] = next.Hands[to].With(cmd.Chit)
	next.Current = to

	return []Event{{Type: EvtChitPassed, Player: cmd.Player, To: to, Chit: cmd.Chit}}, next, nil
}

func declareVictory(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhasePlaying {
		return nil, s, ErrWrongPhase
	}
	if cmd.Player != s.Current {
		return nil, s, ErrNotYourTurn
	}
	kind, ok := s.Hands[cmd.Player].FourOfAKind()
	if !ok {
		return nil, s, ErrNoFourOfAKind
	}

	next := s.Clone()
	next.Phase = PhaseReaction
	next.Victor = cmd.Player
	next.Reactions = nil
	next.ReactionStart = cmd.At
	next.Scored = false

	return []Event{{Type: EvtVictoryDeclared, Player: cmd.Player, Chit: kind}}, next, nil
}

func stackHand(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseReaction {
		return nil, s, ErrWrongPhase
	}
	if !slices.Contains(s.Players, cmd.Player) {
		return nil, s, ErrUnknownPlayer
	}
	if cmd.Player == s.Victor {
		return nil, s, ErrVictorCannotReact
	}
	if s.hasReported(cmd.Player) {
		return nil, s, ErrAlreadyReported
	}

	// Client clocks are trusted as-is; a skewed clock can yield negative latency.
	elapsed := cmd.ReactionTime - s.ReactionStart

	next := s.Clone()
	next.Reactions = append(next.Reactions, Reaction{Player: cmd.Player, ElapsedMs: elapsed})
	events := []Event{{Type: EvtReactionRecorded, Player: cmd.Player, ElapsedMs: elapsed}}

	if len(next.Reactions) == len(next.Players)-1 {
		events = append(events, next.score())
	}
	return events, next, nil
}

func expireReactions(s State) ([]Event, State, error) {
	if s.Phase != PhaseReaction || s.Scored {
		return nil, s, ErrWrongPhase
	}

	next := s.Clone()
	var events []Event
	for _, p := range next.Players {
		if p == next.Victor || next.hasReported(p) {
			continue
		}
		next.Reactions = append(next.Reactions, Reaction{Player: p, ElapsedMs: ForfeitLatency, Forfeit: true})
		events = append(events, Event{Type: EvtReactionForfeited, Player: p, ElapsedMs: ForfeitLatency})
	}
	events = append(events, next.score())
	return events, next, nil
}

func restart(s State) ([]Event, State, error) {
	if s.Phase == PhasePlaying || (s.Phase == PhaseReaction && !s.Scored) {
		return nil, s, ErrRoundInProgress
	}

	starter, ok := s.Ledger.Lowest(s.Players)
	if !ok {
		return nil, s, ErrUnknownPlayer
	}

	ledger := s.Ledger.Clone()
	ledger.Round++
	next := State{
		RoomCode: s.RoomCode,
		Phase:    PhaseWaiting,
		Hands:    map[string]Hand{},
		Pool:     NewPool(s.Rules.Shuffle),
		Conns:    cloneConns(s.Conns),
		Ledger:   ledger,
		Rules:    s.Rules,
	}

	order := make([]string, 0, len(s.Players))
	order = append(order, starter)
	for _, p := range s.Players {
		if p != starter {
			order = append(order, p)
		}
	}
	for _, p := range order {
		if err := next.seat(p); err != nil {
			return nil, s, err
		}
	}

	events := []Event{{Type: EvtRoundRestarted, Player: starter}}
	if ev, ok := next.startIfFull(); ok {
		events = append(events, ev)
	}
	return events, next, nil
}

// seat deals a fresh hand and appends p to the turn order.
func (s *State) seat(p string) error {
	hand, err := s.Pool.Deal(HandSize)
	if err != nil {
		return err
	}
	s.Players = append(s.Players, p)
	s.Hands[p] = hand
	s.Ledger.Enroll(p)
	return nil
}

func (s *State) startIfFull() (Event, bool) {
	if len(s.Players) != SeatCount {
		return Event{}, false
	}
	s.Phase = PhasePlaying
	s.Current = s.Players[0]
	return Event{Type: EvtGameStarted, Player: s.Current}, true
}

func (s *State) score() Event {
	res := settle(s.Victor, s.Reactions, &s.Ledger)
	s.Scored = true
	return Event{Type: EvtRoundScored, Player: s.Victor, Result: &res}
}

func (s State) hasReported(p string) bool {
	return slices.ContainsFunc(s.Reactions, func(r Reaction) bool { return r.Player == p })
}

func (s State) Clone() State {
	c := s
	c.Players = slices.Clone(s.Players)
	c.Hands = make(map[string]Hand, len(s.Hands))
	for p, h := range s.Hands {
		c.Hands[p] = slices.Clone(h)
	}
	c.Reactions = slices.Clone(s.Reactions)
	c.Pool = Pool{Chits: slices.Clone(s.Pool.Chits)}
	c.Conns = cloneConns(s.Conns)
	c.Ledger = s.Ledger.Clone()
	return c
}

func cloneConns(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
