// Package mln describes the logical layer of a Markov Logic Network:
// constant domains, predicate schemas, weighted first-order clauses and
// evidence databases.
//
// # Markov Logic
//
// A Markov Logic Network is a set of weighted first-order clauses. Together
// with a finite set of constants it defines a probability distribution over
// the possible truth assignments of all ground atoms: the probability of an
// assignment is proportional to exp(sum of the weights of the ground clauses
// it satisfies). A clause may also be marked hard, in which case every
// assignment violating one of its groundings has probability zero.
//
// The package expects clauses that are already in clausal normal form, as
// produced by an external knowledge-base compiler. It does not perform CNF
// conversion, quantifier elimination or predicate completion.
//
// # Atom identities
//
// Every ground atom is mapped to a dense positive integer id by an Encoder.
// Ids are assigned in contiguous blocks, one block per predicate signature,
// using mixed-radix positional encoding over the argument domains. Both
// encoding and decoding are O(arity) and never materialize the Cartesian
// product of the domains.
//
// By convention, terms starting with an upper-case letter or a digit are
// constants, terms starting with a lower-case letter are variables.
package mln
