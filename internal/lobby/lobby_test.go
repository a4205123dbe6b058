package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// C is dealt four oranges; A and B each hold two apples.
func scenarioDeal(c []engine.Kind) {
	copy(c, []engine.Kind{
		engine.KindApple, engine.KindBanana, engine.KindKiwi, engine.KindApple,
		engine.KindApple, engine.KindBanana, engine.KindKiwi, engine.KindApple,
		engine.KindOrange, engine.KindOrange, engine.KindOrange, engine.KindOrange,
		engine.KindBanana, engine.KindBanana, engine.KindKiwi, engine.KindKiwi,
	})
}

// helper: receive one notification with a timeout so tests never hang
func recvNotification(t *testing.T, ch <-chan Notification, within time.Duration) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return n
	case <-time.After(within):
		t.Fatalf("timed out waiting for notification")
		return Notification{} // unreachable
	}
}

// recvType skips notifications until one of the wanted type arrives.
func recvType(t *testing.T, ch <-chan Notification, typ string, within time.Duration) Notification {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", typ)
			}
			if n.Type == typ {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return Notification{}
		}
	}
}

func recvNoNotification(t *testing.T, ch <-chan Notification, within time.Duration) {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further notifications possible
			return
		}
		t.Fatalf("expected no notification within %v, but got: %+v", within, n)
	case <-time.After(within):
		// good: nothing
	}
}

// drain discards everything already queued.
func drain(ch <-chan Notification) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func waitClosed(t *testing.T, ch <-chan Notification, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox was not closed")
		}
	}
}

type fixture struct {
	lobby *Lobby
	clock *clockwork.FakeClock
	outs  map[string]chan Notification
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	opts.Clock = clock

	initial, err := engine.NewRoom("1234", "A", "conn-A", engine.Rules{Shuffle: scenarioDeal})
	require.NoError(t, err)

	f := &fixture{
		lobby: NewLobby(ctx, initial, opts),
		clock: clock,
		outs:  map[string]chan Notification{"A": make(chan Notification, 64)},
	}
	require.NoError(t, f.lobby.Attach(ctx, "conn-A", f.outs["A"]))
	return f
}

func (f *fixture) seatAll(t *testing.T) {
	t.Helper()
	for _, p := range []string{"B", "C", "D"} {
		f.outs[p] = make(chan Notification, 64)
		require.NoError(t, f.lobby.Join(context.Background(), p, "conn-"+p, f.outs[p]))
	}
}

func (f *fixture) do(t *testing.T, cmd engine.Command) {
	t.Helper()
	require.NoError(t, f.lobby.Dispatch(context.Background(), "conn-"+cmd.Player, cmd))
}

// toReaction plays the scripted round up to C's victory at t=1000ms.
func (f *fixture) toReaction(t *testing.T) {
	t.Helper()
	f.seatAll(t)
	f.do(t, engine.Command{Type: engine.CmdSelectChit, Player: "A", Chit: engine.KindApple})
	f.do(t, engine.Command{Type: engine.CmdSelectChit, Player: "B", Chit: engine.KindApple})
	f.do(t, engine.Command{Type: engine.CmdDeclareVictory, Player: "C"})
}

func TestLobby_AttachGreetsCreator(t *testing.T) {
	f := newFixture(t, Options{})

	n := recvNotification(t, f.outs["A"], 100*time.Millisecond)
	require.Equal(t, types.EventRoomJoined, n.Type)
	joined := n.Payload.(types.RoomJoined)
	assert.Equal(t, "1234", joined.RoomCode)
	assert.Equal(t, "A", joined.PlayerName)
	assert.Nil(t, joined.CurrentPlayer)
	assert.Equal(t, "waiting", joined.GameState)
	assert.Len(t, joined.Players["A"], engine.HandSize)
}

func TestLobby_Join_PrivateAckThenBroadcast(t *testing.T) {
	f := newFixture(t, Options{})
	_ = recvNotification(t, f.outs["A"], 100*time.Millisecond)

	outB := make(chan Notification, 8)
	require.NoError(t, f.lobby.Join(context.Background(), "B", "conn-B", outB))

	ack := recvNotification(t, outB, 100*time.Millisecond)
	require.Equal(t, types.EventRoomJoined, ack.Type)
	assert.Equal(t, "B", ack.Payload.(types.RoomJoined).PlayerName)

	for _, ch := range []chan Notification{f.outs["A"], outB} {
		n := recvNotification(t, ch, 100*time.Millisecond)
		require.Equal(t, types.EventUpdateGame, n.Type)
		assert.Equal(t, 1, n.Version)
		snap := n.Payload.(types.Snapshot)
		assert.Equal(t, []string{"A", "B"}, snap.TurnOrder)
		assert.Equal(t, engine.PoolSize-2*engine.HandSize, snap.PoolRemaining)
	}
	recvNoNotification(t, f.outs["A"], 50*time.Millisecond)
}

func TestLobby_Join_Rejected(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.lobby.Join(context.Background(), "A", "conn-2", make(chan Notification, 1))
	require.ErrorIs(t, err, engine.ErrNameTaken)

	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, view.Version)
	assert.Equal(t, 1, view.NumClients)
}

func TestLobby_FourthJoinStartsPlaying(t *testing.T) {
	f := newFixture(t, Options{})
	f.seatAll(t)

	n := recvType(t, f.outs["D"], types.EventUpdateGame, 100*time.Millisecond)
	snap := n.Payload.(types.Snapshot)
	assert.Equal(t, "playing", snap.GameState)
	require.NotNil(t, snap.CurrentPlayer)
	assert.Equal(t, "A", *snap.CurrentPlayer)
	assert.Equal(t, 3, snap.Version)
	assert.Equal(t, 0, snap.PoolRemaining)
}

func TestLobby_RejectionDoesNotBroadcast(t *testing.T) {
	f := newFixture(t, Options{})
	f.seatAll(t)
	outC := f.outs["C"]
	drain(outC)

	err := f.lobby.Dispatch(context.Background(), "conn-B",
		engine.Command{Type: engine.CmdSelectChit, Player: "B", Chit: engine.KindApple})
	require.ErrorIs(t, err, engine.ErrNotYourTurn)
	recvNoNotification(t, outC, 50*time.Millisecond)

	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, view.Version)
	assert.Equal(t, "A", view.State.Current)
}

type recorder struct {
	mu     sync.Mutex
	rounds []engine.RoundResult
	series []engine.FinalResults
}

func (r *recorder) RecordRound(_ string, res engine.RoundResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, res)
}

func (r *recorder) RecordSeries(_ string, res engine.FinalResults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series = append(r.series, res)
}

func TestLobby_ReactionRace_GameOver(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, Options{Recorder: rec})
	f.toReaction(t)

	n := recvType(t, f.outs["A"], types.EventUpdateGame, 100*time.Millisecond)
	for n.Payload.(types.Snapshot).GameState != "reaction" {
		n = recvType(t, f.outs["A"], types.EventUpdateGame, 100*time.Millisecond)
	}
	snap := n.Payload.(types.Snapshot)
	require.NotNil(t, snap.VictoryPlayer)
	assert.Equal(t, "C", *snap.VictoryPlayer)
	require.NotNil(t, snap.ReactionStartTime)
	assert.Equal(t, int64(1000), *snap.ReactionStartTime)

	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "A", ReactionTime: 1500})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "B", ReactionTime: 1300})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "D", ReactionTime: 1700})

	over := recvType(t, f.outs["C"], types.EventGameOver, 100*time.Millisecond)
	res := over.Payload.(types.GameOver)
	assert.Equal(t, "C", res.Winner)
	require.NotNil(t, res.SlowestPlayer)
	assert.Equal(t, "D", *res.SlowestPlayer)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3, "D": 0}, res.Scores)
	assert.Equal(t, 1, res.RoundNumber)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.rounds, 1)
	assert.Equal(t, "C", rec.rounds[0].Winner)
}

func TestLobby_ReactionTimeout_ForfeitsSilentPlayers(t *testing.T) {
	f := newFixture(t, Options{ReactionTimeout: 5 * time.Second})
	f.toReaction(t)
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "B", ReactionTime: 1300})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(5 * time.Second)

	over := recvType(t, f.outs["B"], types.EventGameOver, time.Second)
	res := over.Payload.(types.GameOver)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3, "D": 0}, res.Scores)
	require.Len(t, res.Placements, 3)
	assert.True(t, res.Placements[1].Forfeit)
	assert.Nil(t, res.Placements[1].ElapsedMs)

	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	assert.True(t, view.State.Scored)
}

func TestLobby_ReactionTimeout_StaleAfterScoring(t *testing.T) {
	f := newFixture(t, Options{ReactionTimeout: 5 * time.Second})
	f.toReaction(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "A", ReactionTime: 1500})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "B", ReactionTime: 1300})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "D", ReactionTime: 1700})
	_ = recvType(t, f.outs["A"], types.EventGameOver, 100*time.Millisecond)

	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	recvNoNotification(t, f.outs["A"], 100*time.Millisecond)

	after, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, view.Version, after.Version)
}

func TestLobby_Restart_BroadcastsNewRound(t *testing.T) {
	f := newFixture(t, Options{})
	f.toReaction(t)

	err := f.lobby.Dispatch(context.Background(), "conn-A", engine.Command{Type: engine.CmdRestart})
	require.ErrorIs(t, err, engine.ErrRoundInProgress)

	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "A", ReactionTime: 1500})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "B", ReactionTime: 1300})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "D", ReactionTime: 1700})
	_ = recvType(t, f.outs["A"], types.EventGameOver, 100*time.Millisecond)

	require.NoError(t, f.lobby.Dispatch(context.Background(), "conn-A", engine.Command{Type: engine.CmdRestart}))
	n := recvType(t, f.outs["A"], types.EventUpdateGame, 100*time.Millisecond)
	snap := n.Payload.(types.Snapshot)
	assert.Equal(t, 2, snap.RoundNumber)
	assert.Equal(t, "playing", snap.GameState)
	require.NotNil(t, snap.CurrentPlayer)
	assert.Equal(t, "D", *snap.CurrentPlayer)
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3, "D": 0}, snap.Scores)
	assert.Empty(t, snap.ReactionTimes)
}

func TestLobby_SecondRoundAccumulatesScores(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, Options{Recorder: rec})
	f.toReaction(t)
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "A", ReactionTime: 1500})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "B", ReactionTime: 1300})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "D", ReactionTime: 1700})
	first := recvType(t, f.outs["A"], types.EventGameOver, 100*time.Millisecond).Payload.(types.GameOver)
	assert.Equal(t, 1, first.RoundNumber)

	// D starts round two; the same deal hands B the four oranges.
	f.do(t, engine.Command{Type: engine.CmdRestart, Player: "D"})
	f.do(t, engine.Command{Type: engine.CmdSelectChit, Player: "D", Chit: engine.KindApple})
	f.do(t, engine.Command{Type: engine.CmdSelectChit, Player: "A", Chit: engine.KindApple})
	f.clock.Advance(4 * time.Second)
	f.do(t, engine.Command{Type: engine.CmdDeclareVictory, Player: "B"})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "C", ReactionTime: 5200})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "A", ReactionTime: 5400})
	f.do(t, engine.Command{Type: engine.CmdStackHand, Player: "D", ReactionTime: 5100})

	second := recvType(t, f.outs["A"], types.EventGameOver, 100*time.Millisecond).Payload.(types.GameOver)
	assert.Equal(t, 2, second.RoundNumber)
	assert.Equal(t, "B", second.Winner)

	want := map[string]int{}
	for p, d := range first.Scores {
		want[p] += d
	}
	for p, d := range map[string]int{"B": 3, "D": 2, "C": 1, "A": 0} {
		want[p] += d
	}
	assert.Equal(t, want, second.Scores)
	assert.Equal(t, map[string]int{"A": 1, "B": 5, "C": 4, "D": 2}, second.Scores)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.rounds, 2)
	assert.Equal(t, 2, rec.rounds[1].Round)
}

func TestLobby_End_FinalResultsThenClosed(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, Options{Recorder: rec})
	f.seatAll(t)

	res, err := f.lobby.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", res.Winner)

	n := recvType(t, f.outs["B"], types.EventFinalResults, 100*time.Millisecond)
	final := n.Payload.(types.FinalResults)
	require.NotNil(t, final.FinalWinner)
	assert.Equal(t, "A", *final.FinalWinner)
	require.NotNil(t, final.FinalLoser)
	waitClosed(t, f.outs["B"], 100*time.Millisecond)

	select {
	case <-f.lobby.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby still running after End")
	}
	err = f.lobby.Dispatch(context.Background(), "conn-A", engine.Command{Type: engine.CmdRestart})
	require.ErrorIs(t, err, ErrClosed)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.series, 1)
}

func TestLobby_End_SoloRoomHasNoLoser(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.lobby.End(context.Background())
	require.NoError(t, err)

	n := recvType(t, f.outs["A"], types.EventFinalResults, 100*time.Millisecond)
	assert.Nil(t, n.Payload.(types.FinalResults).FinalLoser)
}

func TestLobby_DropSlowClient(t *testing.T) {
	f := newFixture(t, Options{})

	slow := make(chan Notification, 1)
	require.NoError(t, f.lobby.Join(context.Background(), "B", "conn-B", slow))

	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	if view.NumClients != 1 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	assert.Contains(t, view.State.Players, "B", "dropping the connection keeps the seat")
	assert.NotContains(t, view.State.Conns, "conn-B")
}

func TestLobby_SlowDropOfLastClientAbandonsRoom(t *testing.T) {
	abandoned := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	initial, err := engine.NewRoom("5555", "A", "conn-A", engine.Rules{})
	require.NoError(t, err)
	l := NewLobby(ctx, initial, Options{OnAbandon: func(l *Lobby) { abandoned <- l.Code() }})

	// room_joined fills the outbox, so the next broadcast overflows it.
	out := make(chan Notification, 1)
	require.NoError(t, l.Attach(ctx, "conn-A", out))
	require.NoError(t, l.Join(ctx, "B", "conn-B", nil))

	select {
	case code := <-abandoned:
		assert.Equal(t, "5555", code)
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("expected room without connections to be abandoned")
	}
	waitClosed(t, out, 100*time.Millisecond)
	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby still running after abandonment")
	}
}

func TestLobby_LastLeaveAbandonsRoom(t *testing.T) {
	abandoned := make(chan string, 1)
	f := newFixture(t, Options{OnAbandon: func(l *Lobby) { abandoned <- l.Code() }})
	f.seatAll(t)

	for _, p := range []string{"A", "B", "C"} {
		require.NoError(t, f.lobby.Leave(context.Background(), "conn-"+p))
		waitClosed(t, f.outs[p], 100*time.Millisecond)
	}
	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, view.NumClients)
	assert.Equal(t, map[string]string{"conn-D": "D"}, view.State.Conns)

	require.NoError(t, f.lobby.Leave(context.Background(), "conn-D"))
	select {
	case code := <-abandoned:
		assert.Equal(t, "1234", code)
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("expected room to be abandoned")
	}
	<-f.lobby.Done()
}

func TestLobby_ConcurrentPassesStaySerialized(t *testing.T) {
	f := newFixture(t, Options{})
	f.seatAll(t)
	start, err := f.lobby.View(context.Background())
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, p := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				for _, k := range engine.Kinds {
					err := f.lobby.Dispatch(context.Background(), "conn-"+p,
						engine.Command{Type: engine.CmdSelectChit, Player: p, Chit: k})
					if err == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
						break
					}
				}
			}
		}(p)
	}
	wg.Wait()

	view, err := f.lobby.View(context.Background())
	require.NoError(t, err)
	require.NoError(t, engine.CheckConservation(view.State))
	assert.Equal(t, start.Version+accepted, view.Version)
	assert.Greater(t, accepted, 0)
}

func TestLobby_ParentCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	initial, err := engine.NewRoom("9999", "A", "conn-A", engine.Rules{})
	require.NoError(t, err)
	l := NewLobby(ctx, initial, Options{})

	out := make(chan Notification, 2)
	require.NoError(t, l.Attach(ctx, "conn-A", out))
	_ = recvNotification(t, out, 100*time.Millisecond)

	cancel()
	waitClosed(t, out, 100*time.Millisecond)
	<-l.Done()
}

func TestLobby_LogsActingConnection(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, Options{Logger: zap.New(core)})
	f.seatAll(t)

	err := f.lobby.Dispatch(context.Background(), "conn-B",
		engine.Command{Type: engine.CmdSelectChit, Player: "B", Chit: engine.KindApple})
	require.ErrorIs(t, err, engine.ErrNotYourTurn)

	rejected := logs.FilterMessage("command rejected").AllUntimed()
	require.Len(t, rejected, 1)
	assert.Equal(t, "conn-B", rejected[0].ContextMap()["conn"])

	// conn-B is seated as B but acts for A.
	require.NoError(t, f.lobby.Dispatch(context.Background(), "conn-B",
		engine.Command{Type: engine.CmdSelectChit, Player: "A", Chit: engine.KindApple}))
	other := logs.FilterMessage("command for another seat").AllUntimed()
	require.Len(t, other, 1)
	fields := other[0].ContextMap()
	assert.Equal(t, "B", fields["seated"])
	assert.Equal(t, "A", fields["player"])
}
