package mrf

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anskarl/lomrf/mln"
)

func TestIncrementalCostMatchesRecomputation(t *testing.T) {
	net := groundSmokers(t)
	s := NewState(net)
	rng := rand.New(rand.NewSource(42))
	s.Randomize(rng)

	free := net.FreeAtoms()
	for i := 0; i < 2000; i++ {
		a := free[rng.Intn(len(free))]
		delta := s.Flip(a)
		require.InDelta(t, s.CostRecomputed(), s.Cost(), 1e-9,
			"incremental cost diverged after %d flips (last delta %g)", i+1, delta)
	}
}

func TestFlipDeltaMatchesDeltaCost(t *testing.T) {
	net := groundSmokers(t)
	s := NewState(net)
	rng := rand.New(rand.NewSource(7))
	s.Randomize(rng)

	for _, a := range net.FreeAtoms() {
		want := s.DeltaCost(a)
		got := s.Flip(a)
		assert.InDelta(t, want, got, 1e-9, "atom %d", a)
		s.Flip(a) // restore
	}
}

func TestUnsatBookkeeping(t *testing.T) {
	net := groundSmokers(t)
	s := NewState(net)

	count := 0
	for ci := 0; ci < net.NumConstraints(); ci++ {
		if !s.Satisfied(int32(ci)) {
			count++
		}
	}
	assert.Equal(t, count, s.NumUnsat())

	seen := make(map[int32]bool)
	for i := 0; i < s.NumUnsat(); i++ {
		ci := s.UnsatAt(i)
		assert.False(t, s.Satisfied(ci))
		assert.False(t, seen[ci], "constraint %d listed twice", ci)
		seen[ci] = true
	}
}

func TestHardConstraintDominance(t *testing.T) {
	doms := mln.ConstantsDomain{"person": mln.NewDomain("person", "Anna", "Bob")}
	p := mln.Signature{Name: "P", Arity: 1}
	q := mln.Signature{Name: "Q", Arity: 1}
	schema := mln.PredicateSchema{p: {"person"}, q: {"person"}}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	ev := mln.NewEvidence(enc, p, q)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), []mln.Clause{
		mln.HardClause(mln.Atom("P", "x")),
		mln.SoftClause(10, mln.Atom("Q", "x")),
		mln.SoftClause(3.5, mln.Atom("Q", "x"), mln.Atom("P", "x")),
	})
	require.NoError(t, err)

	s := NewState(net)
	// All atoms false: every constraint inc. both hard ones is violated.
	allViolated := s.Cost()
	// Satisfy the hard constraints only.
	for _, a := range net.FreeAtoms() {
		if net.Encoder().SignatureOf(int(a)) == p {
			s.Flip(a)
		}
	}
	require.Equal(t, 0, s.NumUnsatHard())
	softOnly := s.Cost()
	assert.Greater(t, allViolated-softOnly, softOnly,
		"one violated hard constraint must outweigh every soft violation combined")
	assert.Greater(t, net.HardWeight(), softOnly)
}

func TestActiveModeCountsUnsatActive(t *testing.T) {
	net := groundSmokers(t)
	s := NewState(net)

	active := make([]bool, net.NumConstraints())
	active[0] = true
	active[2] = true
	s.SetActive(active)

	want := 0.0
	for ci := range active {
		if active[ci] && !s.Satisfied(int32(ci)) {
			want++
		}
	}
	assert.InDelta(t, want, s.Cost(), 1e-9)
	assert.InDelta(t, s.CostRecomputed(), s.Cost(), 1e-9)

	rng := rand.New(rand.NewSource(3))
	free := net.FreeAtoms()
	for i := 0; i < 500; i++ {
		s.Flip(free[rng.Intn(len(free))])
		require.InDelta(t, s.CostRecomputed(), s.Cost(), 1e-9)
	}

	s.SetActive(nil)
	assert.InDelta(t, s.CostRecomputed(), s.Cost(), 1e-9)
}

func TestSetFixedAndReset(t *testing.T) {
	net := groundSmokers(t)
	s := NewState(net)
	a := net.FreeAtoms()[0]

	require.False(t, s.Fixed(a))
	s.SetFixed(a, true)
	assert.True(t, s.Fixed(a))
	assert.True(t, s.Value(a))
	assert.InDelta(t, s.CostRecomputed(), s.Cost(), 1e-9)

	s.ResetFixed()
	assert.False(t, s.Fixed(a))
	assert.True(t, s.Value(a), "ResetFixed releases the pin but keeps the value")
}

func TestHardModelSatisfiesHardConstraints(t *testing.T) {
	doms := mln.ConstantsDomain{"person": mln.NewDomain("person", "Anna", "Bob")}
	p := mln.Signature{Name: "P", Arity: 1}
	schema := mln.PredicateSchema{p: {"person"}}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	ev := mln.NewEvidence(enc, p)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), []mln.Clause{
		mln.HardClause(mln.Atom("P", "Anna")),
		mln.HardClause(mln.Neg("P", "Bob")),
	})
	require.NoError(t, err)

	vals, err := net.HardModel()
	require.NoError(t, err)
	s := NewState(net)
	s.SetValues(vals)
	assert.Equal(t, 0, s.NumUnsatHard())

	// Now make the hard constraints contradictory.
	net2, err := g.Ground(context.Background(), []mln.Clause{
		mln.HardClause(mln.Atom("P", "Anna")),
		mln.HardClause(mln.Neg("P", "Anna")),
	})
	require.NoError(t, err)
	_, err = net2.HardModel()
	var uerr *UnsatError
	require.ErrorAs(t, err, &uerr)
}
