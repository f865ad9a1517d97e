package infer

import (
	"context"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/anskarl/lomrf/mrf"
)

// Marginals hold per-query-atom true-counts over a number of MC-SAT
// samples.
type Marginals struct {
	atoms   []int32
	counts  []int64
	samples int64
}

// NumAtoms returns the number of query atoms.
func (m *Marginals) NumAtoms() int {
	return len(m.atoms)
}

// AtomAt returns the ith query atom id.
func (m *Marginals) AtomAt(i int) int32 {
	return m.atoms[i]
}

// ProbAt returns the estimated marginal probability of the ith query atom
// being true.
func (m *Marginals) ProbAt(i int) float64 {
	return float64(m.counts[i]) / float64(m.samples)
}

// Samples returns the number of samples the estimates are based on.
func (m *Marginals) Samples() int64 {
	return m.samples
}

// MCSAT estimates per-atom marginal probabilities by MCMC sampling.
// Every sample satisfies all hard constraints exactly; soft constraints
// influence how often a sample satisfies them, following the log-linear
// distribution exp(sum of satisfied clause weights).
type MCSAT struct {
	net    *mrf.Network
	params Params
	log    logrus.FieldLogger
	// Stats describe the last Run call.
	Stats Stats
}

// NewMCSAT returns a marginal sampler over net.
func NewMCSAT(net *mrf.Network, params Params, logger logrus.FieldLogger) (*MCSAT, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &MCSAT{net: net, params: params, log: logger}, nil
}

// Run draws the configured number of dependent samples and returns the
// per-atom marginal estimates. The chain starts from a complete model of
// the hard constraints; hard infeasibility is returned as an
// *mrf.UnsatError before any sampling happens.
func (mc *MCSAT) Run(ctx context.Context) (*Marginals, error) {
	mc.Stats = Stats{}
	init, err := mc.net.HardModel()
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(mc.params.Seed))
	s := mrf.NewState(mc.net)
	s.SetValues(init)

	w := newWalk(s, mc.params, rng, &mc.Stats, mc.log)
	w.sa = true
	pool := newSolutionPool(mc.params.NumSolutions)
	w.collect = func() bool {
		pool.add(s)
		return pool.full()
	}

	nc := mc.net.NumConstraints()
	active := make([]bool, nc)
	prev := make([]bool, 0)

	query := mc.net.QueryAtoms()
	res := &Marginals{
		atoms:  query,
		counts: make([]int64, len(query)),
	}

	for n := 0; n < mc.params.Samples; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Slice step: keep each clause the previous sample satisfies
		// with probability 1-exp(-weight); hard clauses always.
		for ci := 0; ci < nc; ci++ {
			c := mc.net.ConstraintAt(ci)
			active[ci] = c.Hard ||
				(s.Satisfied(int32(ci)) && rng.Float64() < 1-math.Exp(-c.Weight))
		}
		prev = s.CopyValues(prev)
		s.ResetFixed()
		s.SetActive(active)
		if mc.params.UnitProp {
			if !propagate(s, active) {
				// The active subset is satisfiable by construction, so
				// this indicates broken bookkeeping; recover by
				// searching unpropagated.
				mc.log.Warn("unit propagation derived a contradiction; searching without it")
				s.ResetFixed()
				s.SetValues(prev)
			}
		}

		// Search step: find a near-uniform state satisfying the active
		// subset.
		w.resetSearch()
		pool.reset()
		for try := 0; try < mc.params.MaxTries; try++ {
			if try > 0 {
				mc.Stats.Restarts++
				s.Randomize(rng)
			}
			if err := w.search(ctx); err != nil {
				return nil, err
			}
			if pool.len() > 0 {
				break
			}
		}

		s.ResetFixed()
		if pool.len() > 0 {
			s.SetValues(pool.pick(rng))
		} else {
			mc.log.WithField("sample", n).Warn("sampling search missed the target cost; keeping current state")
		}

		mc.Stats.Samples++
		for qi, a := range query {
			if s.Value(a) {
				res.counts[qi]++
			}
		}
	}
	res.samples = mc.Stats.Samples
	return res, nil
}

// propagate fixes the forced values of active unit clauses, iterating to a
// fixpoint. It reports false when the active subset forces an atom both
// ways.
func propagate(s *mrf.State, active []bool) bool {
	net := s.Network()
	for changed := true; changed; {
		changed = false
		for ci := range active {
			if !active[ci] {
				continue
			}
			c := net.ConstraintAt(ci)
			satisfied := false
			unfixed := 0
			var forced int32
			for _, l := range c.Lits {
				a := atomOf(l)
				if s.Fixed(a) {
					if s.Value(a) == (l > 0) {
						satisfied = true
						break
					}
					continue
				}
				unfixed++
				forced = l
			}
			if satisfied {
				continue
			}
			if unfixed == 0 {
				return false
			}
			if unfixed == 1 {
				s.SetFixed(atomOf(forced), forced > 0)
				changed = true
			}
		}
	}
	return true
}

// solutionPool keeps up to numSolutions snapshots of below-target states
// observed during one sampling search; the next sample is drawn uniformly
// from it, decorrelating successive samples. Buffers are reused across
// samples.
type solutionPool struct {
	bufs [][]bool
	used int
}

func newSolutionPool(n int) *solutionPool {
	return &solutionPool{bufs: make([][]bool, n)}
}

func (p *solutionPool) reset() {
	p.used = 0
}

func (p *solutionPool) add(s *mrf.State) {
	if p.used == len(p.bufs) {
		return
	}
	p.bufs[p.used] = s.CopyValues(p.bufs[p.used])
	p.used++
}

func (p *solutionPool) full() bool {
	return p.used == len(p.bufs)
}

func (p *solutionPool) len() int {
	return p.used
}

func (p *solutionPool) pick(rng *rand.Rand) []bool {
	return p.bufs[rng.Intn(p.used)]
}

// MarginalChains runs n independent MC-SAT chains over the shared
// immutable network, each with a private assignment and a derived seed,
// and averages their estimates. Chains run in parallel; the network is
// never mutated, so no synchronization beyond the final merge is needed.
func MarginalChains(ctx context.Context, net *mrf.Network, params Params, n int, logger logrus.FieldLogger) (*Marginals, error) {
	if n < 1 {
		n = 1
	}
	chains := make([]*Marginals, n)
	grp, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		grp.Go(func() error {
			p := params
			p.Seed = params.Seed + int64(i)
			var log logrus.FieldLogger
			if logger != nil {
				log = logger.WithField("chain", i)
			}
			mc, err := NewMCSAT(net, p, log)
			if err != nil {
				return err
			}
			res, err := mc.Run(ctx)
			if err != nil {
				return err
			}
			chains[i] = res
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	merged := &Marginals{
		atoms:  chains[0].atoms,
		counts: make([]int64, len(chains[0].counts)),
	}
	for _, c := range chains {
		merged.samples += c.samples
		for i, cnt := range c.counts {
			merged.counts[i] += cnt
		}
	}
	return merged, nil
}
