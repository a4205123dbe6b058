package lobby

import (
	"maps"
	"slices"

	"github.com/DoyleJ11/chits-backend/internal/engine"
	"github.com/DoyleJ11/chits-backend/pkg/types"
)

func snapshotOf(version int, s engine.State) types.Snapshot {
	snap := types.Snapshot{
		Version:       version,
		RoomCode:      s.RoomCode,
		GameState:     string(s.Phase),
		TurnOrder:     slices.Clone(s.Players),
		Players:       handsOf(s),
		CurrentPlayer: optional(s.Current),
		VictoryPlayer: optional(s.Victor),
		ReactionTimes: map[string]int64{},
		RoundScored:   s.Scored,
		Scores:        maps.Clone(s.Ledger.Scores),
		RoundNumber:   s.Ledger.Round,
		PoolRemaining: s.Pool.Len(),
	}
	if s.Phase == engine.PhaseReaction {
		start := s.ReactionStart
		snap.ReactionStartTime = &start
	}
	for _, r := range s.Reactions {
		if r.Forfeit {
			snap.Forfeited = append(snap.Forfeited, r.Player)
			continue
		}
		snap.ReactionTimes[r.Player] = r.ElapsedMs
	}
	return snap
}

func handsOf(s engine.State) map[string][]string {
	out := make(map[string][]string, len(s.Hands))
	for p, h := range s.Hands {
		chits := make([]string, len(h))
		for i, k := range h {
			chits[i] = string(k)
		}
		out[p] = chits
	}
	return out
}

func roomJoinedOf(s engine.State, player string) types.RoomJoined {
	return types.RoomJoined{
		RoomCode:      s.RoomCode,
		PlayerName:    player,
		CurrentPlayer: optional(s.Current),
		Players:       handsOf(s),
		GameState:     string(s.Phase),
	}
}

func gameOverOf(res engine.RoundResult) types.GameOver {
	out := types.GameOver{
		Winner:        res.Winner,
		SlowestPlayer: optional(res.Slowest),
		Scores:        maps.Clone(res.Scores),
		RoundNumber:   res.Round,
		Placements:    make([]types.Placement, 0, len(res.Placements)),
	}
	for _, p := range res.Placements {
		tp := types.Placement{Player: p.Player, Place: p.Place, Points: p.Points, Forfeit: p.Forfeit}
		if !p.Forfeit {
			elapsed := p.ElapsedMs
			tp.ElapsedMs = &elapsed
		}
		out.Placements = append(out.Placements, tp)
	}
	return out
}

func finalResultsOf(res engine.FinalResults) types.FinalResults {
	return types.FinalResults{
		Scores:      maps.Clone(res.Scores),
		FinalWinner: optional(res.Winner),
		FinalLoser:  optional(res.Loser),
		RoundNumber: res.Rounds,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SnapshotOf renders a View the same way update_game does.
func SnapshotOf(v View) types.Snapshot {
	return snapshotOf(v.Version, v.State)
}
