// Package mrf turns a weighted clause theory and an evidence database into
// a ground Markov Random Field: a weighted Boolean constraint network over
// dense atom ids.
//
// The Grounder expands every clause over the constant domains, simplifies
// each grounding against the evidence, deduplicates the survivors and emits
// an immutable Network. Solvers then operate on a State, a private mutable
// truth assignment over the shared network that maintains per-constraint
// satisfied-literal counts and the total unsatisfied cost incrementally
// under flips.
//
// Hard clauses are represented with a finite sentinel weight strictly
// greater than the sum of all absolute soft weights, so that any assignment
// violating a hard constraint costs more than any assignment violating
// only soft ones, while cost arithmetic stays in ordinary floats.
package mrf
