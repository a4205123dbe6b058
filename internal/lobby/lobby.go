package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// Attach registers an outbox for room broadcasts. A connection already seated
// in the room is greeted with room_joined, anyone else with the current snapshot.
type Attach struct {
	ConnID string
	Outbox chan Notification
}

func (Attach) isLobbyMsg() {}

type JoinRoom struct {
	Player string
	ConnID string
	Outbox chan Notification
	Reply  chan error // buffered; nil to fire and forget
}

func (JoinRoom) isLobbyMsg() {}

type FromClient struct {
	ConnID string
	Cmd    engine.Command
	Reply  chan error // buffered; nil to fire and forget
}

func (FromClient) isLobbyMsg() {}

type Leave struct{ ConnID string }

func (Leave) isLobbyMsg() {}

// End tallies the series, broadcasts final_results and stops the lobby.
type End struct {
	Reply chan engine.FinalResults
}

func (End) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type reactionExpired struct{ gen int }

func (reactionExpired) isLobbyMsg() {}

type Notification struct {
	Type    string // pkg/types event name
	Version int
	Payload any
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

// Recorder receives finished rounds and series. Calls happen on the lobby
// goroutine and must not block.
type Recorder interface {
	RecordRound(code string, res engine.RoundResult)
	RecordSeries(code string, res engine.FinalResults)
}

type Options struct {
	Logger          *zap.Logger
	Clock           clockwork.Clock
	ReactionTimeout time.Duration // 0 waits for every reactor indefinitely
	Recorder        Recorder
	// OnAbandon runs on the lobby goroutine after the last connection leaves.
	OnAbandon func(*Lobby)
}

type Lobby struct {
	code    string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Notification
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	opts     Options
	log      *zap.Logger
	clock    clockwork.Clock
	timer    clockwork.Timer
	timerGen int

	// set when a connection detaches; cleared once abandonment is checked
	lostClient bool
}

func NewLobby(parent context.Context, initial engine.State, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	l := &Lobby{
		code:    initial.RoomCode,
		inbox:   make(chan Msg, 64), // Small buffer
		state:   initial,
		version: 0,
		clients: make(map[string]chan Notification),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		opts:    opts,
		log:     opts.Logger.With(zap.String("room", initial.RoomCode)),
		clock:   opts.Clock,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Attach:
				if old, ok := l.clients[msg.ConnID]; ok && old != msg.Outbox {
					close(old)
				}
				l.clients[msg.ConnID] = msg.Outbox
				l.greet(msg.ConnID, msg.Outbox)

			case JoinRoom:
				reply(msg.Reply, l.join(msg))

			case FromClient:
				cmd := msg.Cmd
				cmd.ConnID = msg.ConnID
				events, err := l.apply(cmd)
				if err == nil {
					l.publish(events)
				}
				reply(msg.Reply, err)

			case Leave:
				l.detach(msg.ConnID)

			case reactionExpired:
				l.expire(msg.gen)

			case End:
				res := l.end()
				if msg.Reply != nil {
					msg.Reply <- res
				}
				l.shutdown()
				return

			case GetState:
				// reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state.Clone(),
				}

			case Shutdown:
				l.shutdown()
				return
			}

			if l.abandoned() {
				l.shutdown()
				return
			}
		}
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

// apply runs one command against the engine. On success the new state is
// committed and the version bumped; nothing is broadcast yet.
func (l *Lobby) apply(cmd engine.Command) ([]engine.Event, error) {
	cmd.At = l.clock.Now().UnixMilli()
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.log.Debug("command rejected",
			zap.String("cmd", string(cmd.Type)),
			zap.String("player", cmd.Player),
			zap.String("conn", cmd.ConnID),
			zap.Error(err))
		return nil, err
	}
	if seated, ok := l.state.PlayerFor(cmd.ConnID); ok && seated != cmd.Player && cmd.Player != "" {
		// Names are not authenticated; note when a connection acts for another seat.
		l.log.Debug("command for another seat",
			zap.String("conn", cmd.ConnID),
			zap.String("seated", seated),
			zap.String("player", cmd.Player))
	}

	l.state = next
	l.version++
	if err := engine.CheckConservation(l.state); err != nil {
		l.log.Error("chit conservation violated", zap.Error(err))
	}
	l.log.Debug("command applied",
		zap.String("cmd", string(cmd.Type)),
		zap.String("player", cmd.Player),
		zap.Int("version", l.version))
	return events, nil
}

// publish broadcasts the post-mutation snapshot, then reacts to the events.
func (l *Lobby) publish(events []engine.Event) {
	l.broadcast(l.update())

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGameStarted:
			l.log.Info("game started",
				zap.Strings("players", l.state.Players),
				zap.Int("round", l.state.Ledger.Round))

		case engine.EvtVictoryDeclared:
			l.armReactionTimer()

		case engine.EvtRoundScored:
			l.stopReactionTimer()
			res := *ev.Result
			l.broadcast(Notification{Type: types.EventGameOver, Version: l.version, Payload: gameOverOf(res)})
			l.log.Info("round scored",
				zap.Int("round", res.Round),
				zap.String("winner", res.Winner),
				zap.String("slowest", res.Slowest),
				zap.Any("scores", res.Scores))
			if l.opts.Recorder != nil {
				l.opts.Recorder.RecordRound(l.code, res)
			}

		case engine.EvtRoundRestarted:
			l.stopReactionTimer()
			l.log.Info("round restarted",
				zap.Int("round", l.state.Ledger.Round),
				zap.String("starter", ev.Player))
		}
	}
}

func (l *Lobby) join(msg JoinRoom) error {
	events, err := l.apply(engine.Command{Type: engine.CmdJoin, Player: msg.Player, ConnID: msg.ConnID})
	if err != nil {
		return err
	}
	if msg.Outbox != nil {
		if old, ok := l.clients[msg.ConnID]; ok && old != msg.Outbox {
			close(old)
		}
		l.clients[msg.ConnID] = msg.Outbox
		l.greet(msg.ConnID, msg.Outbox)
	}
	l.publish(events)
	return nil
}

// detach closes a connection's outbox and forgets it. The seat is kept.
func (l *Lobby) detach(id string) {
	if ch, ok := l.clients[id]; ok {
		close(ch)
		delete(l.clients, id)
		l.lostClient = true
	}
	delete(l.state.Conns, id)
}

// abandoned reports whether the last attached connection has gone, handing
// the room to OnAbandon once.
func (l *Lobby) abandoned() bool {
	if !l.lostClient || len(l.clients) > 0 || l.opts.OnAbandon == nil {
		return false
	}
	l.lostClient = false
	l.log.Info("room abandoned")
	l.opts.OnAbandon(l)
	return true
}

func (l *Lobby) end() engine.FinalResults {
	l.stopReactionTimer()
	res := engine.Finalize(l.state)
	l.broadcast(Notification{Type: types.EventFinalResults, Version: l.version, Payload: finalResultsOf(res)})
	l.log.Info("room ended",
		zap.String("winner", res.Winner),
		zap.String("loser", res.Loser),
		zap.Int("rounds", res.Rounds))
	if l.opts.Recorder != nil {
		l.opts.Recorder.RecordSeries(l.code, res)
	}
	return res
}

func (l *Lobby) shutdown() {
	l.stopReactionTimer()
	for id, ch := range l.clients {
		close(ch) // Tell client no more notifications
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) update() Notification {
	return Notification{Type: types.EventUpdateGame, Version: l.version, Payload: snapshotOf(l.version, l.state)}
}

func (l *Lobby) greet(id string, out chan Notification) {
	n := l.update()
	if player, ok := l.state.PlayerFor(id); ok {
		n = Notification{Type: types.EventRoomJoined, Version: l.version, Payload: roomJoinedOf(l.state, player)}
	}
	l.deliver(id, out, n)
}

func (l *Lobby) deliver(id string, ch chan Notification, n Notification) {
	select {
	case ch <- n:
		//ok
	default:
		// Client is slow/full - drop them.
		l.log.Warn("dropping slow client", zap.String("conn", id))
		l.detach(id)
	}
}

func (l *Lobby) broadcast(n Notification) {
	for id, ch := range l.clients {
		l.deliver(id, ch, n)
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Code() string { return l.code }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) Attach(ctx context.Context, connID string, out chan Notification) error {
	return l.Send(ctx, Attach{ConnID: connID, Outbox: out})
}

func (l *Lobby) Leave(ctx context.Context, connID string) error {
	return l.Send(ctx, Leave{ConnID: connID})
}

func (l *Lobby) Join(ctx context.Context, player, connID string, out chan Notification) error {
	rc := make(chan error, 1)
	if err := l.Send(ctx, JoinRoom{Player: player, ConnID: connID, Outbox: out, Reply: rc}); err != nil {
		return err
	}
	err, waitErr := await(ctx, l, rc)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (l *Lobby) Dispatch(ctx context.Context, connID string, cmd engine.Command) error {
	rc := make(chan error, 1)
	if err := l.Send(ctx, FromClient{ConnID: connID, Cmd: cmd, Reply: rc}); err != nil {
		return err
	}
	err, waitErr := await(ctx, l, rc)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (l *Lobby) End(ctx context.Context) (engine.FinalResults, error) {
	rc := make(chan engine.FinalResults, 1)
	if err := l.Send(ctx, End{Reply: rc}); err != nil {
		return engine.FinalResults{}, err
	}
	return await(ctx, l, rc)
}

func (l *Lobby) View(ctx context.Context) (View, error) {
	rc := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: rc}); err != nil {
		return View{}, err
	}
	return await(ctx, l, rc)
}

func await[T any](ctx context.Context, l *Lobby, rc <-chan T) (T, error) {
	var zero T
	select {
	case v := <-rc:
		return v, nil
	case <-l.done:
		// The final reply may race the shutdown.
		select {
		case v := <-rc:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
