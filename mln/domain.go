package mln

import (
	"fmt"
	"sort"
)

// A Domain is a named, ordered, deduplicated list of constant symbols.
type Domain struct {
	Name   string
	consts []string
	index  map[string]int
}

// NewDomain returns a domain holding the given constants, in order,
// with duplicates removed.
func NewDomain(name string, consts ...string) *Domain {
	d := &Domain{Name: name, index: make(map[string]int, len(consts))}
	for _, c := range consts {
		if _, ok := d.index[c]; !ok {
			d.index[c] = len(d.consts)
			d.consts = append(d.consts, c)
		}
	}
	return d
}

// Size returns the number of constants in d.
func (d *Domain) Size() int {
	return len(d.consts)
}

// Const returns the ith constant of d.
func (d *Domain) Const(i int) string {
	return d.consts[i]
}

// Index returns the position of the given constant symbol, or false if the
// symbol does not belong to d.
func (d *Domain) Index(sym string) (int, bool) {
	i, ok := d.index[sym]
	return i, ok
}

// Constants returns the constants of d, in order. The returned slice must
// not be modified.
func (d *Domain) Constants() []string {
	return d.consts
}

// A ConstantsDomain maps domain names to their constant lists.
type ConstantsDomain map[string]*Domain

// A PredicateSchema maps each predicate signature to the ordered list of
// its argument domain names.
type PredicateSchema map[Signature][]string

// A SchemaError reports a clause or atom referencing an undeclared
// predicate, a wrong arity, or a constant outside its argument domain.
type SchemaError struct {
	Sig    Signature
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on %s: %s", e.Sig, e.Reason)
}

// Signatures returns the declared signatures, sorted by name then arity.
func (s PredicateSchema) Signatures() []Signature {
	sigs := make([]Signature, 0, len(s))
	for sig := range s {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool {
		if sigs[i].Name != sigs[j].Name {
			return sigs[i].Name < sigs[j].Name
		}
		return sigs[i].Arity < sigs[j].Arity
	})
	return sigs
}

// Validate checks that every argument domain referenced by the schema is
// declared in doms.
func (s PredicateSchema) Validate(doms ConstantsDomain) error {
	for _, sig := range s.Signatures() {
		argDoms := s[sig]
		if len(argDoms) != sig.Arity {
			return &SchemaError{Sig: sig, Reason: fmt.Sprintf("declared with %d argument domains", len(argDoms))}
		}
		for _, name := range argDoms {
			if _, ok := doms[name]; !ok {
				return &SchemaError{Sig: sig, Reason: fmt.Sprintf("unknown argument domain %q", name)}
			}
		}
	}
	return nil
}

// CheckClause checks c against the schema: every literal must reference a
// declared signature, every constant argument must belong to the matching
// domain, and a variable occupying several argument positions must always
// range over the same domain. It also rejects NaN soft weights.
func (s PredicateSchema) CheckClause(doms ConstantsDomain, c Clause) error {
	if err := CheckWeight(c); err != nil {
		return err
	}
	varDoms := make(map[Term]string)
	for _, lit := range c.Literals {
		sig := lit.Signature()
		argDoms, ok := s[sig]
		if !ok {
			return &SchemaError{Sig: sig, Reason: "undeclared predicate"}
		}
		for i, t := range lit.Args {
			if t.Variable() {
				if prev, ok := varDoms[t]; ok && prev != argDoms[i] {
					return &SchemaError{Sig: sig, Reason: fmt.Sprintf("variable %s ranges over both %q and %q", t, prev, argDoms[i])}
				}
				varDoms[t] = argDoms[i]
				continue
			}
			dom := doms[argDoms[i]]
			if dom == nil {
				return &SchemaError{Sig: sig, Reason: fmt.Sprintf("unknown argument domain %q", argDoms[i])}
			}
			if _, ok := dom.Index(string(t)); !ok {
				return &SchemaError{Sig: sig, Reason: fmt.Sprintf("constant %s not in domain %q", t, argDoms[i])}
			}
		}
	}
	return nil
}
