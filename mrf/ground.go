package mrf

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/anskarl/lomrf/mln"
)

// DefaultMaxConstraints bounds the number of ground constraints a single
// network may hold before grounding is aborted.
const DefaultMaxConstraints = 5_000_000

// An UnsatError reports a hard clause grounding that the evidence reduces
// to an empty clause: no truth assignment can satisfy the theory.
type UnsatError struct {
	Clause mln.Clause
	Subst  map[mln.Term]string
}

func (e *UnsatError) Error() string {
	if len(e.Clause.Literals) == 0 {
		return "unsatisfiable evidence: the hard constraints admit no model"
	}
	if len(e.Subst) == 0 {
		return fmt.Sprintf("unsatisfiable evidence: hard clause %q is falsified", e.Clause.String())
	}
	parts := make([]string, 0, len(e.Subst))
	for v, c := range e.Subst {
		parts = append(parts, fmt.Sprintf("%s=%s", v, c))
	}
	sort.Strings(parts)
	return fmt.Sprintf("unsatisfiable evidence: hard clause %q is falsified under {%s}",
		e.Clause.String(), strings.Join(parts, ", "))
}

// An OverflowError reports that grounding would exceed the configured
// constraint bound. The culprits are the source clauses with the largest
// grounding counts; clauses produced by existential quantifier expansion
// are the usual cause.
type OverflowError struct {
	Count    int64
	Bound    int
	Culprits []string
}

func (e *OverflowError) Error() string {
	msg := fmt.Sprintf("grounding overflow: %d constraints exceed the bound of %d", e.Count, e.Bound)
	if len(e.Culprits) > 0 {
		msg += "; largest clauses: " + strings.Join(e.Culprits, "; ")
	}
	return msg
}

// GrounderOptions configure a Grounder. The zero value is usable.
type GrounderOptions struct {
	// MaxConstraints aborts grounding when the estimated or actual
	// number of ground constraints exceeds it. 0 means
	// DefaultMaxConstraints.
	MaxConstraints int
	// Workers is the number of goroutines grounding clauses in
	// parallel. 0 means GOMAXPROCS.
	Workers int
	// Logger receives grounding progress and summary entries. nil
	// disables logging.
	Logger logrus.FieldLogger
}

// A Grounder expands weighted clauses over the constant domains into a
// ground constraint network, simplifying against evidence.
type Grounder struct {
	schema mln.PredicateSchema
	doms   mln.ConstantsDomain
	ev     *mln.Evidence
	opts   GrounderOptions
}

// NewGrounder returns a grounder over the given schema, domains and
// evidence. The evidence must be built over an encoder for the same
// schema and domains.
func NewGrounder(schema mln.PredicateSchema, doms mln.ConstantsDomain, ev *mln.Evidence, opts GrounderOptions) (*Grounder, error) {
	if err := schema.Validate(doms); err != nil {
		return nil, err
	}
	if opts.MaxConstraints == 0 {
		opts.MaxConstraints = DefaultMaxConstraints
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		log := logrus.New()
		log.SetOutput(io.Discard)
		log.SetLevel(logrus.PanicLevel)
		opts.Logger = log
	}
	return &Grounder{schema: schema, doms: doms, ev: ev, opts: opts}, nil
}

// a rawConstraint is one surviving ground clause before deduplication.
type rawConstraint struct {
	lits   []int32 // sorted signed atom ids
	weight float64
	hard   bool
}

// a clauseResult is everything one source clause contributed.
type clauseResult struct {
	raw      []rawConstraint
	baseCost float64
}

// Ground expands, simplifies and deduplicates all clauses and returns the
// resulting immutable network. Clauses are grounded in parallel; the
// merge pass runs in source order, so the result is deterministic.
func (g *Grounder) Ground(ctx context.Context, clauses []mln.Clause) (*Network, error) {
	start := time.Now()
	for _, c := range clauses {
		if err := g.schema.CheckClause(g.doms, c); err != nil {
			return nil, err
		}
	}
	if err := g.checkEstimate(clauses); err != nil {
		return nil, err
	}

	results := make([]clauseResult, len(clauses))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.opts.Workers)
	for i := range clauses {
		i := i
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := g.groundClause(clauses[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	net, err := g.merge(results)
	if err != nil {
		return nil, err
	}
	g.opts.Logger.WithFields(logrus.Fields{
		"clauses":     len(clauses),
		"constraints": net.NumConstraints(),
		"atoms":       len(net.atoms),
		"hard_weight": net.hardWeight,
		"base_cost":   net.baseCost,
		"elapsed":     time.Since(start),
	}).Info("grounding complete")
	return net, nil
}

// checkEstimate rejects theories whose grounding counts are certain to
// blow the constraint bound, before any expansion work happens.
func (g *Grounder) checkEstimate(clauses []mln.Clause) error {
	type estimate struct {
		clause mln.Clause
		count  int64
	}
	var total int64
	ests := make([]estimate, 0, len(clauses))
	for _, c := range clauses {
		count := int64(1)
		for _, dom := range g.variableDomains(c) {
			count *= int64(dom.Size())
			if count > int64(g.opts.MaxConstraints) {
				break
			}
		}
		ests = append(ests, estimate{clause: c, count: count})
		total += count
	}
	if total <= int64(g.opts.MaxConstraints) {
		return nil
	}
	sort.Slice(ests, func(i, j int) bool { return ests[i].count > ests[j].count })
	culprits := make([]string, 0, 3)
	for _, e := range ests[:min(3, len(ests))] {
		culprits = append(culprits, fmt.Sprintf("%s (%d groundings)", e.clause.String(), e.count))
	}
	return &OverflowError{Count: total, Bound: g.opts.MaxConstraints, Culprits: culprits}
}

// variableDomains returns, for each free variable of c in sorted order,
// the domain it ranges over, inferred from the argument positions the
// variable occupies. CheckClause guarantees consistency.
func (g *Grounder) variableDomains(c mln.Clause) []*mln.Domain {
	vars := c.Variables()
	doms := make([]*mln.Domain, len(vars))
	for i, v := range vars {
		for _, lit := range c.Literals {
			argDoms := g.schema[lit.Signature()]
			for j, t := range lit.Args {
				if t == v {
					doms[i] = g.doms[argDoms[j]]
				}
			}
		}
	}
	return doms
}

// litTemplate precompiles one literal of a clause: each argument is either
// a fixed constant or an index into the current variable binding.
type litTemplate struct {
	sig     mln.Signature
	negated bool
	varPos  []int    // -1 where the argument is a constant
	consts  []string // the constant where varPos is -1
}

// groundClause enumerates all substitutions of one clause with an
// iterative mixed-radix counter, simplifies each grounding against the
// evidence and returns the survivors.
func (g *Grounder) groundClause(c mln.Clause) (clauseResult, error) {
	vars := c.Variables()
	doms := g.variableDomains(c)
	varIdx := make(map[mln.Term]int, len(vars))
	for i, v := range vars {
		varIdx[v] = i
	}

	tmpls := make([]litTemplate, len(c.Literals))
	for i, lit := range c.Literals {
		t := litTemplate{
			sig:     lit.Signature(),
			negated: lit.Negated,
			varPos:  make([]int, len(lit.Args)),
			consts:  make([]string, len(lit.Args)),
		}
		for j, arg := range lit.Args {
			if arg.Variable() {
				t.varPos[j] = varIdx[arg]
			} else {
				t.varPos[j] = -1
				t.consts[j] = string(arg)
			}
		}
		tmpls[i] = t
	}

	var res clauseResult
	counter := make([]int, len(vars))
	binding := make([]string, len(vars))
	for i := range binding {
		binding[i] = doms[i].Const(0)
	}
	args := make([]string, 0, 8)
	lits := make([]int32, 0, len(c.Literals))

	for {
		lits = lits[:0]
		satisfied := false
		for _, t := range tmpls {
			args = args[:0]
			for j, vp := range t.varPos {
				if vp >= 0 {
					args = append(args, binding[vp])
				} else {
					args = append(args, t.consts[j])
				}
			}
			id, err := g.ev.Encoder().Encode(t.sig, args)
			if err != nil {
				return clauseResult{}, errors.Wrap(err, "grounding")
			}
			switch g.ev.ValueOf(id) {
			case mln.True:
				if !t.negated {
					satisfied = true
				}
			case mln.False:
				if t.negated {
					satisfied = true
				}
			default:
				l := int32(id)
				if t.negated {
					l = -l
				}
				lits = append(lits, l)
			}
			if satisfied {
				break
			}
		}
		if !satisfied {
			if tautologyOrDedup(&lits) {
				satisfied = true
			}
		}
		if !satisfied {
			if len(lits) == 0 {
				if c.Hard {
					subst := make(map[mln.Term]string, len(vars))
					for i, v := range vars {
						subst[v] = binding[i]
					}
					return clauseResult{}, &UnsatError{Clause: c, Subst: subst}
				}
				// A falsified soft grounding is unavoidable cost.
				if c.Weight > 0 {
					res.baseCost += c.Weight
				}
			} else {
				res.append(c, lits)
			}
		}
		if !nextBinding(counter, binding, doms) {
			break
		}
	}
	return res, nil
}

// append records one surviving grounding. A negative-weight clause is
// replaced by the equivalent negated unit clauses, each carrying an equal
// share of the absolute weight, so that all soft constraint weights stay
// positive.
func (r *clauseResult) append(c mln.Clause, lits []int32) {
	if !c.Hard && c.Weight < 0 {
		share := -c.Weight / float64(len(lits))
		for _, l := range lits {
			r.raw = append(r.raw, rawConstraint{lits: []int32{-l}, weight: share})
		}
		return
	}
	cp := make([]int32, len(lits))
	copy(cp, lits)
	r.raw = append(r.raw, rawConstraint{lits: cp, weight: c.Weight, hard: c.Hard})
}

// tautologyOrDedup sorts the signed literals, drops duplicates in place
// and reports whether the clause contains an atom in both polarities.
func tautologyOrDedup(lits *[]int32) bool {
	ls := *lits
	if len(ls) < 2 {
		return false
	}
	sort.Slice(ls, func(i, j int) bool {
		ai, aj := abs32(ls[i]), abs32(ls[j])
		if ai != aj {
			return ai < aj
		}
		return ls[i] < ls[j]
	})
	out := ls[:1]
	for _, l := range ls[1:] {
		prev := out[len(out)-1]
		if l == prev {
			continue
		}
		if l == -prev {
			return true
		}
		out = append(out, l)
	}
	*lits = out
	return false
}

// nextBinding advances the mixed-radix counter over variable bindings.
// It returns false once every combination has been produced.
func nextBinding(counter []int, binding []string, doms []*mln.Domain) bool {
	for i := len(counter) - 1; i >= 0; i-- {
		counter[i]++
		if counter[i] < doms[i].Size() {
			binding[i] = doms[i].Const(counter[i])
			return true
		}
		counter[i] = 0
		binding[i] = doms[i].Const(0)
	}
	return false
}

// merge deduplicates the per-clause results by signed-literal tuple,
// summing weights on collision, computes the hard sentinel weight and
// materializes the network.
func (g *Grounder) merge(results []clauseResult) (*Network, error) {
	net := &Network{enc: g.ev.Encoder()}
	index := make(map[string]int)
	var key []byte
	for _, res := range results {
		net.baseCost += res.baseCost
		for _, raw := range res.raw {
			key = key[:0]
			for _, l := range raw.lits {
				key = binary.LittleEndian.AppendUint32(key, uint32(l))
			}
			if i, ok := index[string(key)]; ok {
				c := &net.constraints[i]
				c.Weight += raw.weight
				c.Hard = c.Hard || raw.hard
				continue
			}
			index[string(key)] = len(net.constraints)
			net.constraints = append(net.constraints, Constraint{
				Lits:   raw.lits,
				Weight: raw.weight,
				Hard:   raw.hard,
			})
			if len(net.constraints) > g.opts.MaxConstraints {
				return nil, &OverflowError{Count: int64(len(net.constraints)), Bound: g.opts.MaxConstraints}
			}
		}
	}

	// Drop soft constraints whose weights cancelled out: they can no
	// longer affect any assignment's cost.
	kept := net.constraints[:0]
	for _, c := range net.constraints {
		if c.Hard || c.Weight != 0 {
			kept = append(kept, c)
		}
	}
	net.constraints = kept

	softSum := 0.0
	for i := range net.constraints {
		if !net.constraints[i].Hard {
			softSum += math.Abs(net.constraints[i].Weight)
		}
	}
	net.hardWeight = softSum + 1
	for i := range net.constraints {
		if net.constraints[i].Hard {
			net.constraints[i].Weight = net.hardWeight
		}
	}

	g.materialize(net)
	return net, nil
}

// materialize collects the atoms the solvers must know about: every atom
// referenced by a surviving constraint plus every grounding of each query
// signature, then builds the CSR adjacency and the evidence templates.
func (g *Grounder) materialize(net *Network) {
	enc := g.ev.Encoder()
	numAtoms := enc.NumAtoms()
	mark := make([]bool, numAtoms+1)
	for _, c := range net.constraints {
		for _, l := range c.Lits {
			mark[abs32(l)] = true
		}
	}
	for _, sig := range g.ev.QuerySignatures() {
		first, last, ok := enc.Range(sig)
		if !ok {
			continue
		}
		for id := first; id <= last; id++ {
			if !mark[id] {
				mark[id] = true
			}
			net.queryAtoms = append(net.queryAtoms, int32(id))
		}
	}

	net.valueTempl = make([]bool, numAtoms+1)
	net.fixedTempl = make([]bool, numAtoms+1)
	for id := int32(1); id <= int32(numAtoms); id++ {
		if !mark[id] {
			continue
		}
		net.atoms = append(net.atoms, id)
		v := g.ev.ValueOf(int(id))
		net.valueTempl[id] = v == mln.True
		net.fixedTempl[id] = v != mln.Unknown
		if v == mln.Unknown {
			net.freeAtoms = append(net.freeAtoms, id)
		}
	}

	// CSR adjacency over atom ids, entries packed as ci<<1|negated.
	net.off = make([]int32, numAtoms+2)
	for _, c := range net.constraints {
		for _, l := range c.Lits {
			net.off[abs32(l)+1]++
		}
	}
	for i := 1; i < len(net.off); i++ {
		net.off[i] += net.off[i-1]
	}
	net.adj = make([]int32, net.off[numAtoms+1])
	fill := make([]int32, numAtoms+1)
	for ci := range net.constraints {
		for _, l := range net.constraints[ci].Lits {
			a := abs32(l)
			e := int32(ci) << 1
			if l < 0 {
				e |= 1
			}
			net.adj[net.off[a]+fill[a]] = e
			fill[a]++
		}
	}
}

func abs32(l int32) int32 {
	if l < 0 {
		return -l
	}
	return l
}
