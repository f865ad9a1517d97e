package infer

import (
	"context"
	"io"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/anskarl/lomrf/mrf"
)

// Stats count the work performed by one engine run. They are informational
// only.
type Stats struct {
	Flips     int64 // flips applied
	NullFlips int64 // iterations where no flip was applied (tabu, fixed, annealing rejection)
	Restarts  int64 // search restarts beyond the first try
	Samples   int64 // MC-SAT samples drawn
}

// A Solution is the outcome of a MAP search: the best assignment found,
// its cost (including the network's base cost) and whether the target
// cost was reached. A non-converged solution is still the best assignment
// observed across all tries.
type Solution struct {
	Values    []bool // 1-based by atom id
	Cost      float64
	Converged bool
}

// MaxWalkSAT searches for the most probable world of a ground network:
// the assignment minimizing the total weight of unsatisfied constraints.
type MaxWalkSAT struct {
	net    *mrf.Network
	params Params
	log    logrus.FieldLogger
	// Stats describe the last Solve call.
	Stats Stats
}

// NewMaxWalkSAT returns a MAP solver over net.
func NewMaxWalkSAT(net *mrf.Network, params Params, logger logrus.FieldLogger) (*MaxWalkSAT, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &MaxWalkSAT{net: net, params: params, log: logger}, nil
}

// Solve runs up to maxTries independent searches of maxFlips flips each
// and returns the best assignment found. The first try starts from a
// complete model of the hard constraints; later tries restart from random
// assignments. Hard infeasibility is detected up front and returned as an
// *mrf.UnsatError.
func (m *MaxWalkSAT) Solve(ctx context.Context) (*Solution, error) {
	m.Stats = Stats{}
	init, err := m.net.HardModel()
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(m.params.Seed))
	s := mrf.NewState(m.net)
	w := newWalk(s, m.params, rng, &m.Stats, m.log)

	for try := 0; try < m.params.MaxTries; try++ {
		if try == 0 {
			s.SetValues(init)
		} else {
			m.Stats.Restarts++
			s.Randomize(rng)
		}
		if err := w.search(ctx); err != nil {
			return nil, err
		}
		if w.bestCost <= m.params.TargetCost {
			break
		}
	}

	converged := w.bestCost <= m.params.TargetCost
	if !converged {
		m.log.WithFields(logrus.Fields{
			"best_cost": w.bestCost,
			"target":    m.params.TargetCost,
			"tries":     m.params.MaxTries,
		}).Warn("target cost not reached; returning best assignment observed")
	}
	values := make([]bool, len(w.best))
	copy(values, w.best)
	return &Solution{
		Values:    values,
		Cost:      w.bestCost + m.net.BaseCost(),
		Converged: converged,
	}, nil
}

// walk is the shared flip engine of MaxWalkSAT and the MC-SAT sampling
// search. All buffers live for the whole run; the flip path allocates
// nothing.
type walk struct {
	s     *mrf.State
	p     Params
	rng   *rand.Rand
	stats *Stats
	log   logrus.FieldLogger

	limiter  *rate.Limiter
	lastFlip []int64 // by atom id, step of the most recent flip
	step     int64

	best     []bool
	bestCost float64

	// sa enables simulated-annealing moves (MC-SAT search step).
	sa bool
	// collect, when set, is invoked on every iteration whose cost is at
	// or below the target; returning true stops the search. When nil,
	// reaching the target ends the search immediately.
	collect func() bool

	cand []int32 // scratch for noisy move candidates
}

const tabuNever = int64(-1) << 62

func newWalk(s *mrf.State, p Params, rng *rand.Rand, stats *Stats, log logrus.FieldLogger) *walk {
	w := &walk{
		s:        s,
		p:        p,
		rng:      rng,
		stats:    stats,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		lastFlip: make([]int64, s.Network().Encoder().NumAtoms()+1),
		bestCost: math.Inf(1),
		cand:     make([]int32, 0, 16),
	}
	for i := range w.lastFlip {
		w.lastFlip[i] = tabuNever
	}
	return w
}

// resetSearch forgets the best-so-far state, for a search over a new cost
// function.
func (w *walk) resetSearch() {
	w.bestCost = math.Inf(1)
}

// search runs one try of up to maxFlips iterations. Within a try the
// best-cost-so-far is non-increasing by construction: it only moves when
// a strictly lower cost is reached.
func (w *walk) search(ctx context.Context) error {
	if c := w.s.Cost(); c < w.bestCost {
		w.bestCost = c
		w.best = w.s.CopyValues(w.best)
	}
	for i := 0; i < w.p.MaxFlips; i++ {
		if i&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cost := w.s.Cost()
		atTarget := cost <= w.p.TargetCost
		if atTarget {
			if w.collect == nil {
				return nil
			}
			if w.collect() {
				return nil
			}
		}
		if w.limiter.Allow() {
			w.log.WithFields(logrus.Fields{
				"flips":     w.stats.Flips,
				"cost":      cost,
				"best_cost": w.bestCost,
				"unsat":     w.s.NumUnsat(),
			}).Debug("searching")
		}
		if w.sa && (atTarget || !w.p.LateSA) && w.rng.Float64() < w.p.PSA {
			w.annealMove()
			continue
		}
		if atTarget {
			// Nothing to repair and no annealing move drawn.
			w.stats.NullFlips++
			continue
		}
		w.walkMove()
	}
	return nil
}

// walkMove performs one MaxWalkSAT iteration: pick an unsatisfied
// constraint, then flip one of its atoms, greedily with probability pBest
// and uniformly otherwise.
func (w *walk) walkMove() {
	s := w.s
	if w.p.SatHardUnit {
		// An unsatisfied hard unit clause leaves no choice: flip its
		// single atom.
		for i := 0; i < s.NumUnsatHard(); i++ {
			ci := s.UnsatHardAt(i)
			c := s.Network().ConstraintAt(int(ci))
			if c.Len() != 1 {
				continue
			}
			if a := atomOf(c.Lits[0]); !s.Fixed(a) {
				w.flip(a)
				return
			}
		}
	}

	var ci int32
	if w.p.SatHardPriority && s.NumUnsatHard() > 0 {
		ci = s.UnsatHardAt(w.rng.Intn(s.NumUnsatHard()))
	} else if n := s.NumUnsat(); n > 0 {
		ci = s.UnsatAt(w.rng.Intn(n))
	} else {
		w.stats.NullFlips++
		return
	}
	c := s.Network().ConstraintAt(int(ci))

	var pick int32 = -1
	var delta float64
	if w.rng.Float64() < w.p.PBest {
		// Greedy move, ties broken by first-found.
		for _, l := range c.Lits {
			a := atomOf(l)
			if s.Fixed(a) {
				continue
			}
			d := s.DeltaCost(a)
			if pick == -1 || d < delta {
				pick, delta = a, d
			}
		}
	} else {
		w.cand = w.cand[:0]
		for _, l := range c.Lits {
			if a := atomOf(l); !s.Fixed(a) {
				w.cand = append(w.cand, a)
			}
		}
		if len(w.cand) > 0 {
			pick = w.cand[w.rng.Intn(len(w.cand))]
			delta = s.DeltaCost(pick)
		}
	}
	if pick == -1 {
		w.stats.NullFlips++
		return
	}
	// Tabu rule: a recently flipped atom may only be re-flipped to reach
	// a new global best.
	if w.step-w.lastFlip[pick] <= int64(w.p.TabuLength) && w.s.Cost()+delta >= w.bestCost {
		w.stats.NullFlips++
		return
	}
	w.flip(pick)
}

// annealMove flips a random free atom, accepting uphill moves with
// probability exp(-delta/saTemperature).
func (w *walk) annealMove() {
	s := w.s
	free := s.Network().FreeAtoms()
	if len(free) == 0 {
		w.stats.NullFlips++
		return
	}
	var a int32 = -1
	for attempt := 0; attempt < 8; attempt++ {
		if c := free[w.rng.Intn(len(free))]; !s.Fixed(c) {
			a = c
			break
		}
	}
	if a == -1 {
		w.stats.NullFlips++
		return
	}
	delta := s.DeltaCost(a)
	if delta <= 0 || w.rng.Float64() < math.Exp(-delta/w.p.SATemperature) {
		w.flip(a)
	} else {
		w.stats.NullFlips++
	}
}

func (w *walk) flip(a int32) {
	w.s.Flip(a)
	w.step++
	w.lastFlip[a] = w.step
	w.stats.Flips++
	if c := w.s.Cost(); c < w.bestCost {
		w.bestCost = c
		w.best = w.s.CopyValues(w.best)
	}
}

func atomOf(l int32) int32 {
	if l < 0 {
		return -l
	}
	return l
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}
