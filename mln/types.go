package mln

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// A Signature identifies a predicate by name and arity.
type Signature struct {
	Name  string
	Arity int
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%d", s.Name, s.Arity)
}

// ParseSignature parses a "name/arity" pair, e.g. "Friends/2".
func ParseSignature(str string) (Signature, error) {
	idx := strings.LastIndexByte(str, '/')
	if idx <= 0 || idx == len(str)-1 {
		return Signature{}, fmt.Errorf("invalid signature %q: want name/arity", str)
	}
	var arity int
	if _, err := fmt.Sscanf(str[idx+1:], "%d", &arity); err != nil || arity < 0 {
		return Signature{}, fmt.Errorf("invalid arity in signature %q", str)
	}
	return Signature{Name: str[:idx], Arity: arity}, nil
}

// A Term is either a constant or a variable symbol. Terms starting with an
// upper-case letter or a digit are constants; all others are variables.
type Term string

// Variable is true iff t is a variable symbol.
func (t Term) Variable() bool {
	if len(t) == 0 {
		return false
	}
	c := t[0]
	return !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9')
}

// A Literal is a possibly negated predicate over a list of terms.
type Literal struct {
	Name    string
	Args    []Term
	Negated bool
}

// Atom returns a new positive literal.
func Atom(name string, args ...Term) Literal {
	return Literal{Name: name, Args: args}
}

// Neg returns a new negated literal.
func Neg(name string, args ...Term) Literal {
	return Literal{Name: name, Args: args, Negated: true}
}

// Signature returns the predicate signature of l.
func (l Literal) Signature() Signature {
	return Signature{Name: l.Name, Arity: len(l.Args)}
}

// Ground is true iff no argument of l is a variable.
func (l Literal) Ground() bool {
	for _, t := range l.Args {
		if t.Variable() {
			return false
		}
	}
	return true
}

// Negation returns the logical negation of l.
func (l Literal) Negation() Literal {
	return Literal{Name: l.Name, Args: l.Args, Negated: !l.Negated}
}

// A Clause is a weighted disjunction of literals. Free variables are
// implicitly universally quantified. A hard clause has no weight: every
// world violating one of its groundings is impossible.
type Clause struct {
	Weight   float64
	Hard     bool
	Literals []Literal
}

// HardClause returns a clause that must be satisfied by every world.
func HardClause(lits ...Literal) Clause {
	return Clause{Hard: true, Literals: lits}
}

// SoftClause returns a clause weighted by weight.
func SoftClause(weight float64, lits ...Literal) Clause {
	return Clause{Weight: weight, Literals: lits}
}

func (c Clause) String() string {
	strs := make([]string, len(c.Literals))
	for i, l := range c.Literals {
		strs[i] = l.String()
	}
	body := strings.Join(strs, " v ")
	if c.Hard {
		return body + "."
	}
	return fmt.Sprintf("%g %s", c.Weight, body)
}

// Variables returns the free variables of c, sorted by symbol.
func (c Clause) Variables() []Term {
	seen := make(map[Term]bool)
	var vars []Term
	for _, lit := range c.Literals {
		for _, t := range lit.Args {
			if t.Variable() && !seen[t] {
				seen[t] = true
				vars = append(vars, t)
			}
		}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// A NumericWeightError reports a soft clause whose weight is NaN, making
// the cost function ill-defined.
type NumericWeightError struct {
	Clause Clause
}

func (e *NumericWeightError) Error() string {
	return fmt.Sprintf("clause %q has an undefined weight", e.Clause.String())
}

// CheckWeight returns a NumericWeightError if c is soft and its weight
// is NaN.
func CheckWeight(c Clause) error {
	if !c.Hard && math.IsNaN(c.Weight) {
		return &NumericWeightError{Clause: c}
	}
	return nil
}
