package mrf

import "math/rand"

// A State is a private mutable truth assignment over a shared Network,
// together with incrementally maintained bookkeeping: per-constraint
// satisfied-literal counts, the total cost of unsatisfied constraints and
// the identity of every unsatisfied constraint. All buffers are allocated
// once; flipping never allocates.
//
// A State has two cost modes. In weighted mode (the default) every
// constraint participates with its own weight. In active mode, set with
// SetActive, only constraints of the active subset participate and each
// counts 1, which is the cost function of the MC-SAT sampling step.
type State struct {
	net       *Network
	value     []bool  // 1-based by atom id
	fixed     []bool  // evidence-fixed plus temporarily propagated atoms
	trueCount []int32 // per constraint, number of literals currently true
	active    []bool  // nil in weighted mode
	cost      float64

	unsat        []int32 // unsatisfied constraints with positive weight
	unsatPos     []int32 // per constraint, its index in unsat or -1
	unsatHard    []int32 // the hard subset of unsat
	unsatHardPos []int32
}

// NewState returns a fresh assignment over n. Evidence-fixed atoms take
// their evidence value; every other atom starts false.
func NewState(n *Network) *State {
	nc := len(n.constraints)
	s := &State{
		net:          n,
		value:        make([]bool, len(n.valueTempl)),
		fixed:        make([]bool, len(n.fixedTempl)),
		trueCount:    make([]int32, nc),
		unsat:        make([]int32, 0, nc),
		unsatPos:     make([]int32, nc),
		unsatHard:    make([]int32, 0, nc),
		unsatHardPos: make([]int32, nc),
	}
	copy(s.value, n.valueTempl)
	copy(s.fixed, n.fixedTempl)
	s.recount()
	return s
}

// Network returns the immutable network s searches over.
func (s *State) Network() *Network {
	return s.net
}

// Randomize assigns a uniform random value to every atom that is neither
// evidence-fixed nor temporarily pinned.
func (s *State) Randomize(rng *rand.Rand) {
	for _, a := range s.net.freeAtoms {
		if !s.fixed[a] {
			s.value[a] = rng.Intn(2) == 1
		}
	}
	s.recount()
}

// SetValues replaces the whole assignment. Values of evidence-fixed atoms
// are restored from the evidence.
func (s *State) SetValues(vals []bool) {
	copy(s.value, vals)
	for a := range s.value {
		if s.net.fixedTempl[a] {
			s.value[a] = s.net.valueTempl[a]
		}
	}
	s.recount()
}

// CopyValues appends a snapshot of the current assignment to dst and
// returns it, reusing dst's backing array when it is large enough.
func (s *State) CopyValues(dst []bool) []bool {
	dst = dst[:0]
	dst = append(dst, s.value...)
	return dst
}

// Value returns the current truth value of atom a.
func (s *State) Value(a int32) bool {
	return s.value[a]
}

// Fixed is true iff atom a must not be flipped: it is evidence-fixed or
// was temporarily pinned by unit propagation.
func (s *State) Fixed(a int32) bool {
	return s.fixed[a]
}

// SetFixed pins atom a to value v, flipping it first if necessary.
func (s *State) SetFixed(a int32, v bool) {
	if s.value[a] != v {
		s.Flip(a)
	}
	s.fixed[a] = true
}

// ResetFixed forgets temporary pins, restoring the evidence-only fixed
// mask.
func (s *State) ResetFixed() {
	copy(s.fixed, s.net.fixedTempl)
}

// SetActive switches the cost function to the given constraint subset:
// unsatisfied active constraints count 1 each, all others count 0.
// Passing nil restores weighted mode. Bookkeeping is rebuilt from the
// current assignment.
func (s *State) SetActive(active []bool) {
	s.active = active
	s.recount()
}

// Cost returns the incrementally maintained cost of the current
// assignment: the total weight (or count, in active mode) of unsatisfied
// constraints. The network's BaseCost is not included.
func (s *State) Cost() float64 {
	return s.cost
}

// CostRecomputed computes the cost from scratch, ignoring the incremental
// bookkeeping. Cost and CostRecomputed must always agree.
func (s *State) CostRecomputed() float64 {
	cost := 0.0
	for ci := range s.net.constraints {
		c := &s.net.constraints[ci]
		sat := false
		for _, l := range c.Lits {
			if s.litTrue(l) {
				sat = true
				break
			}
		}
		if !sat {
			cost += s.weight(int32(ci))
		}
	}
	return cost
}

// Satisfied is true iff constraint ci has at least one true literal.
func (s *State) Satisfied(ci int32) bool {
	return s.trueCount[ci] > 0
}

// NumUnsat returns the number of unsatisfied constraints with a positive
// weight under the current cost mode.
func (s *State) NumUnsat() int {
	return len(s.unsat)
}

// UnsatAt returns the ith unsatisfied constraint, in no particular order.
func (s *State) UnsatAt(i int) int32 {
	return s.unsat[i]
}

// NumUnsatHard returns the number of unsatisfied hard constraints.
func (s *State) NumUnsatHard() int {
	return len(s.unsatHard)
}

// UnsatHardAt returns the ith unsatisfied hard constraint.
func (s *State) UnsatHardAt(i int) int32 {
	return s.unsatHard[i]
}

// Flip toggles atom a and updates every referencing constraint's
// bookkeeping in one pass over the atom's adjacency. It returns the cost
// delta. The caller must not flip an evidence-fixed atom.
func (s *State) Flip(a int32) float64 {
	before := s.cost
	v := !s.value[a]
	s.value[a] = v
	for _, e := range s.net.adjacency(a) {
		ci := e >> 1
		neg := e&1 == 1
		if v != neg { // literal of a in ci just became true
			s.trueCount[ci]++
			if s.trueCount[ci] == 1 {
				if w := s.weight(ci); w > 0 {
					s.cost -= w
					s.dropUnsat(ci)
				}
			}
		} else {
			s.trueCount[ci]--
			if s.trueCount[ci] == 0 {
				if w := s.weight(ci); w > 0 {
					s.cost += w
					s.pushUnsat(ci)
				}
			}
		}
	}
	return s.cost - before
}

// DeltaCost evaluates the cost delta that Flip(a) would produce, without
// applying it.
func (s *State) DeltaCost(a int32) float64 {
	delta := 0.0
	for _, e := range s.net.adjacency(a) {
		ci := e >> 1
		neg := e&1 == 1
		if s.value[a] != neg { // literal currently true, would become false
			if s.trueCount[ci] == 1 {
				delta += s.weight(ci)
			}
		} else if s.trueCount[ci] == 0 {
			delta -= s.weight(ci)
		}
	}
	return delta
}

func (s *State) litTrue(l int32) bool {
	if l < 0 {
		return !s.value[-l]
	}
	return s.value[l]
}

func (s *State) weight(ci int32) float64 {
	if s.active != nil {
		if s.active[ci] {
			return 1
		}
		return 0
	}
	return s.net.constraints[ci].Weight
}

func (s *State) pushUnsat(ci int32) {
	s.unsatPos[ci] = int32(len(s.unsat))
	s.unsat = append(s.unsat, ci)
	if s.net.constraints[ci].Hard {
		s.unsatHardPos[ci] = int32(len(s.unsatHard))
		s.unsatHard = append(s.unsatHard, ci)
	}
}

func (s *State) dropUnsat(ci int32) {
	if pos := s.unsatPos[ci]; pos >= 0 {
		last := s.unsat[len(s.unsat)-1]
		s.unsat[pos] = last
		s.unsatPos[last] = pos
		s.unsat = s.unsat[:len(s.unsat)-1]
		s.unsatPos[ci] = -1
	}
	if !s.net.constraints[ci].Hard {
		return
	}
	if pos := s.unsatHardPos[ci]; pos >= 0 {
		last := s.unsatHard[len(s.unsatHard)-1]
		s.unsatHard[pos] = last
		s.unsatHardPos[last] = pos
		s.unsatHard = s.unsatHard[:len(s.unsatHard)-1]
		s.unsatHardPos[ci] = -1
	}
}

func (s *State) recount() {
	s.cost = 0
	s.unsat = s.unsat[:0]
	s.unsatHard = s.unsatHard[:0]
	for ci := range s.net.constraints {
		c := &s.net.constraints[ci]
		cnt := int32(0)
		for _, l := range c.Lits {
			if s.litTrue(l) {
				cnt++
			}
		}
		s.trueCount[ci] = cnt
		s.unsatPos[ci] = -1
		s.unsatHardPos[ci] = -1
		if cnt == 0 {
			if w := s.weight(int32(ci)); w > 0 {
				s.cost += w
				s.pushUnsat(int32(ci))
			}
		}
	}
}
