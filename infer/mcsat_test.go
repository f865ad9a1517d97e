package infer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anskarl/lomrf/mln"
	"github.com/anskarl/lomrf/mrf"
)

func coinNetwork(t *testing.T, clauses ...mln.Clause) *mrf.Network {
	t.Helper()
	heads := mln.Signature{Name: "Heads", Arity: 1}
	doms := mln.ConstantsDomain{"coin": mln.NewDomain("coin", "Nickel")}
	schema := mln.PredicateSchema{heads: {"coin"}}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	ev := mln.NewEvidence(enc, heads)
	return ground(t, schema, doms, ev, clauses)
}

func headsProb(t *testing.T, m *Marginals, net *mrf.Network) float64 {
	t.Helper()
	require.Equal(t, 1, m.NumAtoms())
	id, err := net.Encoder().Encode(mln.Signature{Name: "Heads", Arity: 1}, []string{"Nickel"})
	require.NoError(t, err)
	require.EqualValues(t, id, m.AtomAt(0))
	return m.ProbAt(0)
}

func TestMCSATFairCoin(t *testing.T) {
	// No clauses at all: both worlds have equal probability.
	net := coinNetwork(t)
	params := DefaultParams()
	params.Samples = 4000
	params.MaxFlips = 100
	params.Seed = 5

	mc, err := NewMCSAT(net, params, nil)
	require.NoError(t, err)
	m, err := mc.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 4000, m.Samples())
	assert.InDelta(t, 0.5, headsProb(t, m, net), 0.05)
}

func TestMCSATPositiveUnitClause(t *testing.T) {
	// A single soft unit Heads(Nickel) with weight 1 gives
	// P(Heads) = e/(1+e) ~ 0.731.
	net := coinNetwork(t, mln.SoftClause(1, mln.Atom("Heads", "c")))
	params := DefaultParams()
	params.Samples = 4000
	params.MaxFlips = 100
	params.Seed = 5

	mc, err := NewMCSAT(net, params, nil)
	require.NoError(t, err)
	m, err := mc.Run(context.Background())
	require.NoError(t, err)

	p := headsProb(t, m, net)
	assert.InDelta(t, 0.731, p, 0.06)
	assert.Greater(t, p, 0.6)
}

func TestMCSATHardClausePinsAtom(t *testing.T) {
	net := coinNetwork(t, mln.HardClause(mln.Atom("Heads", "c")))
	params := DefaultParams()
	params.Samples = 200
	params.MaxFlips = 100

	mc, err := NewMCSAT(net, params, nil)
	require.NoError(t, err)
	m, err := mc.Run(context.Background())
	require.NoError(t, err)

	// Hard constraints hold in every sample.
	assert.Equal(t, 1.0, headsProb(t, m, net))
}

func TestMCSATUnsatisfiableHardTheory(t *testing.T) {
	net := coinNetwork(t,
		mln.HardClause(mln.Atom("Heads", "c")),
		mln.HardClause(mln.Neg("Heads", "c")),
	)
	mc, err := NewMCSAT(net, DefaultParams(), nil)
	require.NoError(t, err)
	_, err = mc.Run(context.Background())
	var uerr *mrf.UnsatError
	require.ErrorAs(t, err, &uerr)
}

func TestMCSATEvidenceAtomsReportedExactly(t *testing.T) {
	smokes := mln.Signature{Name: "Smokes", Arity: 1}
	doms := mln.ConstantsDomain{"person": mln.NewDomain("person", "Anna", "Bob")}
	schema := mln.PredicateSchema{smokes: {"person"}}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	ev := mln.NewEvidence(enc, smokes)
	require.NoError(t, ev.SetAtom(smokes, []string{"Anna"}, true))
	net := ground(t, schema, doms, ev, []mln.Clause{
		mln.SoftClause(2, mln.Atom("Smokes", "x")),
	})

	params := DefaultParams()
	params.Samples = 500
	params.MaxFlips = 100
	mc, err := NewMCSAT(net, params, nil)
	require.NoError(t, err)
	m, err := mc.Run(context.Background())
	require.NoError(t, err)

	// Smokes(Anna) is evidence and reported with probability exactly 1;
	// the positive weight pushes Smokes(Bob) well above one half.
	require.Equal(t, 2, m.NumAtoms())
	anna, err := enc.Encode(smokes, []string{"Anna"})
	require.NoError(t, err)
	bob, err := enc.Encode(smokes, []string{"Bob"})
	require.NoError(t, err)
	require.EqualValues(t, anna, m.AtomAt(0))
	require.EqualValues(t, bob, m.AtomAt(1))
	assert.Equal(t, 1.0, m.ProbAt(0))
	assert.Greater(t, m.ProbAt(1), 0.6)
}

func TestMarginalChainsMergesSamples(t *testing.T) {
	net := coinNetwork(t)
	params := DefaultParams()
	params.Samples = 500
	params.MaxFlips = 100
	params.Seed = 3

	m, err := MarginalChains(context.Background(), net, params, 4, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 4*500, m.Samples())
	assert.InDelta(t, 0.5, headsProb(t, m, net), 0.05)
}

func TestPropagateFixesForcedAtoms(t *testing.T) {
	net := smokersNetwork(t)
	s := mrf.NewState(net)
	active := make([]bool, net.NumConstraints())
	for i := range active {
		active[i] = true
	}
	// The evidence Smokes(Anna) together with the active clauses forces
	// Cancer(Anna) through the unit 1.5 !Smokes(Anna) v Cancer(Anna).
	require.True(t, propagate(s, active))
	enc := net.Encoder()
	cancerAnna, err := enc.Encode(mln.Signature{Name: "Cancer", Arity: 1}, []string{"Anna"})
	require.NoError(t, err)
	assert.True(t, s.Fixed(int32(cancerAnna)))
	assert.True(t, s.Value(int32(cancerAnna)))
}
