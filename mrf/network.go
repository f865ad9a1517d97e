package mrf

import (
	"github.com/mitchellh/hashstructure"

	"github.com/anskarl/lomrf/mln"
)

// A Constraint is a ground clause: a disjunction of signed atom ids with a
// weight. Hard constraints carry the network's hard sentinel weight.
type Constraint struct {
	Lits   []int32 // signed atom ids, sorted; positive means positive literal
	Weight float64
	Hard   bool
}

// Len returns the number of literals in c.
func (c *Constraint) Len() int {
	return len(c.Lits)
}

// A Network is the immutable part of a ground MRF: the materialized atoms,
// the ground constraints and a CSR adjacency from each atom to the
// constraints mentioning it. Any number of States may search over one
// Network concurrently.
type Network struct {
	enc         *mln.Encoder
	constraints []Constraint
	hardWeight  float64
	baseCost    float64 // weight of soft groundings already falsified by evidence

	atoms      []int32 // all materialized atom ids, ascending
	freeAtoms  []int32 // materialized atoms not fixed by evidence
	queryAtoms []int32 // every grounding of every query signature

	// CSR adjacency: for atom a, adj[off[a]:off[a+1]] lists the constraints
	// containing a. Each entry packs the constraint index shifted left by
	// one, with the low bit set when the literal is negated.
	off []int32
	adj []int32

	valueTempl []bool // evidence truth values, 1-based by atom id
	fixedTempl []bool // true where evidence pins the atom
}

// Encoder returns the atom identity encoder the network was grounded with.
func (n *Network) Encoder() *mln.Encoder {
	return n.enc
}

// NumConstraints returns the number of ground constraints.
func (n *Network) NumConstraints() int {
	return len(n.constraints)
}

// ConstraintAt returns the ith ground constraint. The returned value must
// not be modified.
func (n *Network) ConstraintAt(i int) *Constraint {
	return &n.constraints[i]
}

// HardWeight returns the finite sentinel weight of hard constraints. It is
// strictly greater than the sum of all absolute soft weights.
func (n *Network) HardWeight() float64 {
	return n.hardWeight
}

// BaseCost returns the total weight of soft clause groundings that the
// evidence alone already falsifies. It is a constant offset on top of any
// assignment's cost.
func (n *Network) BaseCost() float64 {
	return n.baseCost
}

// Atoms returns the ids of all materialized atoms, ascending.
func (n *Network) Atoms() []int32 {
	return n.atoms
}

// FreeAtoms returns the materialized atoms whose value is not fixed by
// evidence: the atoms a solver may flip.
func (n *Network) FreeAtoms() []int32 {
	return n.freeAtoms
}

// QueryAtoms returns every grounding of every query signature, ascending,
// whether or not a constraint mentions it.
func (n *Network) QueryAtoms() []int32 {
	return n.queryAtoms
}

// Fixed is true iff the atom's value is pinned by evidence.
func (n *Network) Fixed(a int32) bool {
	return n.fixedTempl[a]
}

// EvidenceValue returns the evidence truth value of a fixed atom, or
// false for searchable atoms.
func (n *Network) EvidenceValue(a int32) bool {
	return n.valueTempl[a]
}

// Degree returns the number of constraints mentioning atom a.
func (n *Network) Degree(a int32) int {
	return int(n.off[a+1] - n.off[a])
}

// adjacency returns the packed constraint entries of atom a.
func (n *Network) adjacency(a int32) []int32 {
	return n.adj[n.off[a]:n.off[a+1]]
}

// Fingerprint returns a stable hash of the constraint list. Grounding the
// same theory and evidence twice yields the same fingerprint, whatever the
// internal iteration order.
func (n *Network) Fingerprint() (uint64, error) {
	return hashstructure.Hash(n.constraints, nil)
}
