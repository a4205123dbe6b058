package engine

import (
	"cmp"
	"maps"
	"math"
	"slices"
)

const VictorPoints = 3

// Points by finishing place among reactors, fastest first.
var placementPoints = []int{2, 1, 0}

// ForfeitLatency ranks a player who never reported behind every real report.
const ForfeitLatency int64 = math.MaxInt64

type Reaction struct {
	Player    string
	ElapsedMs int64
	Forfeit   bool
}

type Placement struct {
	Player    string
	ElapsedMs int64
	Place     int
	Points    int
	Forfeit   bool
}

type RoundResult struct {
	Round      int
	Winner     string
	Slowest    string
	Placements []Placement
	Scores     map[string]int
}

// Rank orders reactions by latency. Equal latencies keep report order.
func Rank(reactions []Reaction) []Reaction {
	ranked := slices.Clone(reactions)
	slices.SortStableFunc(ranked, func(a, b Reaction) int {
		return cmp.Compare(a.ElapsedMs, b.ElapsedMs)
	})
	return ranked
}

func pointsFor(place int) int {
	if place < 1 || place > len(placementPoints) {
		return 0
	}
	return placementPoints[place-1]
}

// settle applies one finished round to the ledger.
func settle(victor string, reactions []Reaction, ledger *Ledger) RoundResult {
	ranked := Rank(reactions)

	ledger.Add(victor, VictorPoints)
	placements := make([]Placement, 0, len(ranked))
	for i, r := range ranked {
		pts := pointsFor(i + 1)
		ledger.Add(r.Player, pts)
		placements = append(placements, Placement{
			Player:    r.Player,
			ElapsedMs: r.ElapsedMs,
			Place:     i + 1,
			Points:    pts,
			Forfeit:   r.Forfeit,
		})
	}

	res := RoundResult{
		Round:      ledger.Round,
		Winner:     victor,
		Placements: placements,
		Scores:     maps.Clone(ledger.Scores),
	}
	if len(ranked) > 0 {
		res.Slowest = ranked[len(ranked)-1].Player
	}
	return res
}
