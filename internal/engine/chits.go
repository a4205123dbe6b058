package engine

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

type Kind string

const (
	KindApple  Kind = "🍎"
	KindBanana Kind = "🍌"
	KindOrange Kind = "🍊"
	KindKiwi   Kind = "🥝"
)

var Kinds = []Kind{KindApple, KindBanana, KindOrange, KindKiwi}

const (
	PerKind   = 4
	HandSize  = 4
	SeatCount = 4
	PoolSize  = PerKind * 4
)

func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, slices.Contains(Kinds, k)
}

// Shuffler reorders a fresh pool in place.
type Shuffler func([]Kind)

func RandomShuffle(chits []Kind) {
	rand.Shuffle(len(chits), func(i, j int) { chits[i], chits[j] = chits[j], chits[i] })
}

// Pool is the undealt part of a round's 16 chits. Chits only ever leave it.
type Pool struct {
	Chits []Kind
}

func NewPool(shuffle Shuffler) Pool {
	chits := make([]Kind, 0, PoolSize)
	for range PerKind {
		chits = append(chits, Kinds...)
	}
	if shuffle == nil {
		shuffle = RandomShuffle
	}
	shuffle(chits)
	return Pool{Chits: chits}
}

// Deal removes n chits from the front of the pool.
func (p *Pool) Deal(n int) ([]Kind, error) {
	if n < 0 || n > len(p.Chits) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrInsufficientPool, n, len(p.Chits))
	}
	dealt := slices.Clone(p.Chits[:n])
	p.Chits = slices.Clone(p.Chits[n:])
	return dealt, nil
}

func (p Pool) Len() int { return len(p.Chits) }

func (p Pool) Count(k Kind) int {
	n := 0
	for _, c := range p.Chits {
		if c == k {
			n++
		}
	}
	return n
}

// Hand keeps chits in arrival order.
type Hand []Kind

func (h Hand) Count(k Kind) int {
	n := 0
	for _, c := range h {
		if c == k {
			n++
		}
	}
	return n
}

func (h Hand) Contains(k Kind) bool { return slices.Contains(h, k) }

// Without returns a copy of h minus the first k.
func (h Hand) Without(k Kind) (Hand, bool) {
	i := slices.Index(h, k)
	if i < 0 {
		return h, false
	}
	out := slices.Clone(h)
	return slices.Delete(out, i, i+1), true
}

func (h Hand) With(k Kind) Hand {
	out := make(Hand, 0, len(h)+1)
	out = append(out, h...)
	return append(out, k)
}

func (h Hand) FourOfAKind() (Kind, bool) {
	for _, k := range Kinds {
		if h.Count(k) >= PerKind {
			return k, true
		}
	}
	return "", false
}
