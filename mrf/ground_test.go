package mrf

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anskarl/lomrf/mln"
)

var (
	smokes  = mln.Signature{Name: "Smokes", Arity: 1}
	cancer  = mln.Signature{Name: "Cancer", Arity: 1}
	friends = mln.Signature{Name: "Friends", Arity: 2}
)

// smokersTheory is the standard social-network example: smoking causes
// cancer, and friends of smokers tend to smoke.
func smokersTheory(t *testing.T) (mln.PredicateSchema, mln.ConstantsDomain, *mln.Evidence, []mln.Clause) {
	t.Helper()
	doms := mln.ConstantsDomain{
		"person": mln.NewDomain("person", "Anna", "Bob", "Chris"),
	}
	schema := mln.PredicateSchema{
		smokes:  {"person"},
		cancer:  {"person"},
		friends: {"person", "person"},
	}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	ev := mln.NewEvidence(enc, smokes, cancer)
	require.NoError(t, ev.SetAtom(friends, []string{"Anna", "Bob"}, true))
	require.NoError(t, ev.SetAtom(friends, []string{"Bob", "Anna"}, true))
	clauses := []mln.Clause{
		mln.SoftClause(1.5, mln.Neg("Smokes", "x"), mln.Atom("Cancer", "x")),
		mln.SoftClause(1.1, mln.Neg("Friends", "x", "y"), mln.Neg("Smokes", "x"), mln.Atom("Smokes", "y")),
	}
	return schema, doms, ev, clauses
}

func groundSmokers(t *testing.T) *Network {
	t.Helper()
	schema, doms, ev, clauses := smokersTheory(t)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), clauses)
	require.NoError(t, err)
	return net
}

func TestGroundSmokers(t *testing.T) {
	net := groundSmokers(t)
	// Three cancer implications plus one surviving friendship constraint
	// per true Friends fact; every other friendship grounding is
	// trivially satisfied by closed-world evidence.
	assert.Equal(t, 5, net.NumConstraints())
	// Query atoms: all groundings of Smokes and Cancer.
	assert.Len(t, net.QueryAtoms(), 6)
	assert.Len(t, net.FreeAtoms(), 6)
	for _, a := range net.FreeAtoms() {
		assert.False(t, net.Fixed(a))
	}
	assert.Equal(t, 0.0, net.BaseCost())
	// All weights are soft here.
	soft := 3*1.5 + 2*1.1
	assert.InDelta(t, soft+1, net.HardWeight(), 1e-9)
}

func TestGroundingDeterminism(t *testing.T) {
	schema, doms, ev, clauses := smokersTheory(t)

	ground := func(workers int) *Network {
		g, err := NewGrounder(schema, doms, ev, GrounderOptions{Workers: workers})
		require.NoError(t, err)
		net, err := g.Ground(context.Background(), clauses)
		require.NoError(t, err)
		return net
	}
	a, b := ground(1), ground(4)

	if diff := cmp.Diff(a.constraints, b.constraints); diff != "" {
		t.Fatalf("constraint mismatch between grounding runs (-first +second):\n%s", diff)
	}
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestGroundingDeduplicatesByWeightSum(t *testing.T) {
	schema, doms, ev, _ := smokersTheory(t)
	clauses := []mln.Clause{
		mln.SoftClause(1.5, mln.Neg("Smokes", "x"), mln.Atom("Cancer", "x")),
		mln.SoftClause(0.5, mln.Neg("Smokes", "x"), mln.Atom("Cancer", "x")),
	}
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), clauses)
	require.NoError(t, err)
	require.Equal(t, 3, net.NumConstraints())
	for i := 0; i < net.NumConstraints(); i++ {
		assert.InDelta(t, 2.0, net.ConstraintAt(i).Weight, 1e-9)
	}
}

func TestGroundingDropsTautologies(t *testing.T) {
	schema, doms, ev, _ := smokersTheory(t)
	clauses := []mln.Clause{
		mln.SoftClause(2.0, mln.Atom("Smokes", "x"), mln.Neg("Smokes", "x")),
	}
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), clauses)
	require.NoError(t, err)
	assert.Equal(t, 0, net.NumConstraints())
}

func TestGroundingNegativeWeightSplitsIntoUnits(t *testing.T) {
	schema, doms, ev, _ := smokersTheory(t)
	clauses := []mln.Clause{
		mln.SoftClause(-2.0, mln.Atom("Smokes", "Anna"), mln.Atom("Cancer", "Anna")),
	}
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), clauses)
	require.NoError(t, err)
	require.Equal(t, 2, net.NumConstraints())
	for i := 0; i < net.NumConstraints(); i++ {
		c := net.ConstraintAt(i)
		assert.Equal(t, 1, c.Len())
		assert.Less(t, c.Lits[0], int32(0), "split units negate the original literals")
		assert.InDelta(t, 1.0, c.Weight, 1e-9)
	}
}

func TestGroundingUnsatisfiableEvidence(t *testing.T) {
	doms := mln.ConstantsDomain{"person": mln.NewDomain("person", "Anna")}
	dead := mln.Signature{Name: "Dead", Arity: 1}
	schema := mln.PredicateSchema{dead: {"person"}}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	// Dead is closed-world with no facts: Dead(Anna) is evidence-false,
	// so the hard clause below reduces to the empty clause.
	ev := mln.NewEvidence(enc)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	_, err = g.Ground(context.Background(), []mln.Clause{mln.HardClause(mln.Atom("Dead", "Anna"))})
	var uerr *UnsatError
	require.ErrorAs(t, err, &uerr)
}

func TestGroundingSoftContradictionBecomesBaseCost(t *testing.T) {
	doms := mln.ConstantsDomain{"person": mln.NewDomain("person", "Anna")}
	dead := mln.Signature{Name: "Dead", Arity: 1}
	schema := mln.PredicateSchema{dead: {"person"}}
	enc, err := mln.NewEncoder(schema, doms)
	require.NoError(t, err)
	ev := mln.NewEvidence(enc)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	net, err := g.Ground(context.Background(), []mln.Clause{mln.SoftClause(0.25, mln.Atom("Dead", "Anna"))})
	require.NoError(t, err)
	assert.Equal(t, 0, net.NumConstraints())
	assert.InDelta(t, 0.25, net.BaseCost(), 1e-9)
}

func TestGroundingOverflow(t *testing.T) {
	schema, doms, ev, clauses := smokersTheory(t)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{MaxConstraints: 2})
	require.NoError(t, err)
	_, err = g.Ground(context.Background(), clauses)
	var oerr *OverflowError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, 2, oerr.Bound)
	assert.NotEmpty(t, oerr.Culprits)
}

func TestGroundingRejectsUndeclaredPredicate(t *testing.T) {
	schema, doms, ev, _ := smokersTheory(t)
	g, err := NewGrounder(schema, doms, ev, GrounderOptions{})
	require.NoError(t, err)
	_, err = g.Ground(context.Background(), []mln.Clause{mln.HardClause(mln.Atom("Drinks", "x"))})
	var serr *mln.SchemaError
	require.ErrorAs(t, err, &serr)
}
