package mln

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// A Theory is a deserialized knowledge base: constant domains, the
// predicate schema, open-world (query) signatures, weighted CNF clauses
// and ground evidence facts. It is the file-level counterpart of the
// in-memory model, produced by an external logic compiler.
type Theory struct {
	Domains ConstantsDomain
	Schema  PredicateSchema
	Open    []Signature
	Clauses []Clause
	Facts   []Literal
}

type theoryFile struct {
	Domains    map[string][]string `yaml:"domains"`
	Predicates map[string][]string `yaml:"predicates"`
	Open       []string            `yaml:"open"`
	Clauses    []theoryClause      `yaml:"clauses"`
	Evidence   []string            `yaml:"evidence"`
}

type theoryClause struct {
	Weight   float64  `yaml:"weight"`
	Hard     bool     `yaml:"hard"`
	Literals []string `yaml:"literals"`
}

// LoadTheory reads a theory from a YAML file. Example:
//
//	domains:
//	  person: [Anna, Bob, Chris]
//	predicates:
//	  Smokes/1: [person]
//	  Friends/2: [person, person]
//	open: [Smokes/1]
//	clauses:
//	  - weight: 1.5
//	    literals: ["!Smokes(x)", "Cancer(x)"]
//	  - hard: true
//	    literals: ["!Friends(x,y)", "Friends(y,x)"]
//	evidence:
//	  - Friends(Anna,Bob)
//	  - "!Smokes(Chris)"
func LoadTheory(path string) (*Theory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading theory")
	}
	var f theoryFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parsing theory file %q", path)
	}

	t := &Theory{
		Domains: make(ConstantsDomain, len(f.Domains)),
		Schema:  make(PredicateSchema, len(f.Predicates)),
	}
	for name, consts := range f.Domains {
		if len(consts) == 0 {
			return nil, errors.Errorf("domain %q is empty", name)
		}
		t.Domains[name] = NewDomain(name, consts...)
	}
	for sigStr, argDoms := range f.Predicates {
		sig, err := ParseSignature(sigStr)
		if err != nil {
			return nil, errors.Wrap(err, "predicate declaration")
		}
		if len(argDoms) != sig.Arity {
			return nil, errors.Errorf("predicate %s declares %d argument domains", sig, len(argDoms))
		}
		t.Schema[sig] = argDoms
	}
	if err := t.Schema.Validate(t.Domains); err != nil {
		return nil, err
	}
	for _, sigStr := range f.Open {
		sig, err := ParseSignature(sigStr)
		if err != nil {
			return nil, errors.Wrap(err, "open declaration")
		}
		if _, ok := t.Schema[sig]; !ok {
			return nil, errors.Errorf("open signature %s is not declared", sig)
		}
		t.Open = append(t.Open, sig)
	}

	for i, cf := range f.Clauses {
		if len(cf.Literals) == 0 {
			return nil, errors.Errorf("clause %d has no literals", i)
		}
		if cf.Hard && cf.Weight != 0 {
			return nil, errors.Errorf("clause %d is hard but carries weight %g", i, cf.Weight)
		}
		c := Clause{Weight: cf.Weight, Hard: cf.Hard}
		for _, ls := range cf.Literals {
			lit, err := ParseLiteral(ls)
			if err != nil {
				return nil, errors.Wrapf(err, "clause %d", i)
			}
			c.Literals = append(c.Literals, lit)
		}
		if err := CheckWeight(c); err != nil {
			return nil, err
		}
		if err := t.Schema.CheckClause(t.Domains, c); err != nil {
			return nil, err
		}
		t.Clauses = append(t.Clauses, c)
	}

	for _, fs := range f.Evidence {
		if err := t.addFact(fs); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddFactsFile reads additional ground evidence from a plain text file:
// one literal per line, blank lines and '#' or '//' comments skipped.
func (t *Theory) AddFactsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "reading evidence")
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "//") {
			continue
		}
		if err := t.addFact(s); err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
	}
	return errors.Wrapf(sc.Err(), "reading %s", path)
}

func (t *Theory) addFact(s string) error {
	lit, err := ParseLiteral(s)
	if err != nil {
		return err
	}
	if !lit.Ground() {
		return errors.Errorf("evidence fact %s is not ground", lit)
	}
	if _, ok := t.Schema[lit.Signature()]; !ok {
		return errors.Errorf("evidence fact %s has no declared predicate", lit)
	}
	t.Facts = append(t.Facts, lit)
	return nil
}

// Build compiles the theory into an atom encoder and its evidence
// database, with every fact applied.
func (t *Theory) Build() (*Encoder, *Evidence, error) {
	enc, err := NewEncoder(t.Schema, t.Domains)
	if err != nil {
		return nil, nil, err
	}
	ev := NewEvidence(enc, t.Open...)
	for _, fact := range t.Facts {
		args := make([]string, len(fact.Args))
		for i, a := range fact.Args {
			args[i] = string(a)
		}
		if err := ev.SetAtom(fact.Signature(), args, !fact.Negated); err != nil {
			return nil, nil, err
		}
	}
	return enc, ev, nil
}
