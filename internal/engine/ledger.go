package engine

import "maps"

// Ledger survives round restarts and is dropped only when the room ends.
type Ledger struct {
	Scores map[string]int
	Round  int
}

func NewLedger() Ledger {
	return Ledger{Scores: map[string]int{}, Round: 1}
}

func (l Ledger) Clone() Ledger {
	c := Ledger{Round: l.Round, Scores: maps.Clone(l.Scores)}
	if c.Scores == nil {
		c.Scores = map[string]int{}
	}
	return c
}

func (l *Ledger) Enroll(player string) {
	if _, ok := l.Scores[player]; !ok {
		l.Scores[player] = 0
	}
}

func (l *Ledger) Add(player string, delta int) {
	l.Scores[player] += delta
}

// Lowest returns the first player in order holding the minimum score.
func (l Ledger) Lowest(order []string) (string, bool) {
	return l.pick(order, func(a, b int) bool { return a < b })
}

// Highest returns the first player in order holding the maximum score.
func (l Ledger) Highest(order []string) (string, bool) {
	return l.pick(order, func(a, b int) bool { return a > b })
}

func (l Ledger) pick(order []string, better func(a, b int) bool) (string, bool) {
	best, found := "", false
	for _, p := range order {
		if !found || better(l.Scores[p], l.Scores[best]) {
			best, found = p, true
		}
	}
	return best, found
}
