package mln

import "fmt"

// A TriState is the evidence status of a ground atom: unknown, or fixed
// true / false.
type TriState int8

const (
	Unknown = TriState(0)
	True    = TriState(1)
	False   = TriState(-1)
)

func (t TriState) String() string {
	switch t {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	case Unknown:
		return "UNKNOWN"
	default:
		panic("invalid tri-state value")
	}
}

// Evidence is a partial truth assignment over an encoder's atom id space.
// Signatures declared open-world (the query signatures) default their
// unset groundings to Unknown so that they remain searchable; every other
// signature is closed-world, defaulting unset groundings to False.
type Evidence struct {
	enc    *Encoder
	values []TriState // 1-based, index 0 unused
	open   map[Signature]bool
}

// NewEvidence returns an empty evidence database over enc's atoms, with
// the given open-world (query) signatures.
func NewEvidence(enc *Encoder, open ...Signature) *Evidence {
	e := &Evidence{
		enc:    enc,
		values: make([]TriState, enc.NumAtoms()+1),
		open:   make(map[Signature]bool, len(open)),
	}
	for _, sig := range open {
		e.open[sig] = true
	}
	return e
}

// Set records the truth value of one ground atom. Setting an atom twice
// with conflicting values is an error.
func (e *Evidence) Set(id int, value bool) error {
	v := False
	if value {
		v = True
	}
	if prev := e.values[id]; prev != Unknown && prev != v {
		return fmt.Errorf("conflicting evidence for %s", e.enc.AtomStringOf(id))
	}
	e.values[id] = v
	return nil
}

// SetAtom records the truth value of a ground atom given by signature and
// constant arguments.
func (e *Evidence) SetAtom(sig Signature, args []string, value bool) error {
	id, err := e.enc.Encode(sig, args)
	if err != nil {
		return err
	}
	return e.Set(id, value)
}

// ValueOf returns the evidence status of an atom: its explicit value if
// one was set, False for unset closed-world atoms, Unknown for unset
// open-world atoms.
func (e *Evidence) ValueOf(id int) TriState {
	if v := e.values[id]; v != Unknown {
		return v
	}
	if e.open[e.enc.SignatureOf(id)] {
		return Unknown
	}
	return False
}

// Fixed is true iff the atom's value is pinned by evidence and must not
// change during search.
func (e *Evidence) Fixed(id int) bool {
	return e.ValueOf(id) != Unknown
}

// Open is true iff sig is an open-world (query) signature.
func (e *Evidence) Open(sig Signature) bool {
	return e.open[sig]
}

// QuerySignatures returns the open-world signatures in sorted order.
func (e *Evidence) QuerySignatures() []Signature {
	s := make(PredicateSchema, len(e.open))
	for sig := range e.open {
		s[sig] = nil
	}
	return s.Signatures()
}

// Encoder returns the encoder whose id space e covers.
func (e *Evidence) Encoder() *Encoder {
	return e.enc
}
