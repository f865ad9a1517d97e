// Package infer provides the two approximate inference engines over a
// ground MRF.
//
// MaxWalkSAT performs MAP inference: a tabu-enhanced stochastic local
// search for the single lowest-cost (most probable) truth assignment.
// It is anytime and approximate; weighted MAX-SAT is NP-hard, so no
// termination bound stronger than maxFlips*maxTries is offered.
//
// MCSAT performs marginal inference: a Markov chain whose samples each
// satisfy the hard constraints exactly. Every step re-selects an "active"
// subset of the currently satisfied clauses (the slice-sampling auxiliary
// variable trick) and then searches for a near-uniform satisfying state of
// that subset with MaxWalkSAT mechanics interleaved with simulated
// annealing. Per-atom true-counts over the samples estimate the marginal
// probabilities.
//
// Both engines are deterministic for a fixed seed and never allocate on
// the flip path.
package infer
