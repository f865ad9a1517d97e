package mrf

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
)

// HardModel runs a complete SAT solver over the hard constraints and the
// evidence and returns a full assignment (1-based by atom id) satisfying
// every hard constraint, or an UnsatError if none exists. MC-SAT starts
// its chain from such a model, since every sample it draws must satisfy
// the hard constraints exactly; MAP search uses it as an up-front
// feasibility check.
func (n *Network) HardModel() ([]bool, error) {
	g := gini.NewV(n.enc.NumAtoms())
	for _, a := range n.atoms {
		if !n.fixedTempl[a] {
			continue
		}
		if n.valueTempl[a] {
			g.Add(z.Var(a).Pos())
		} else {
			g.Add(z.Var(a).Neg())
		}
		g.Add(0)
	}
	for ci := range n.constraints {
		c := &n.constraints[ci]
		if !c.Hard {
			continue
		}
		for _, l := range c.Lits {
			if l < 0 {
				g.Add(z.Var(-l).Neg())
			} else {
				g.Add(z.Var(l).Pos())
			}
		}
		g.Add(0)
	}
	if g.Solve() != 1 {
		return nil, &UnsatError{}
	}
	vals := make([]bool, len(n.valueTempl))
	copy(vals, n.valueTempl)
	for _, a := range n.freeAtoms {
		vals[a] = g.Value(z.Var(a).Pos())
	}
	return vals, nil
}
