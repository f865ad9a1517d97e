package mln

import (
	"fmt"
	"sort"
)

// An Encoder is a bijection between ground atoms and dense positive
// integer ids. Each signature owns a contiguous id block sized to the
// product of its argument domain cardinalities; within a block, ids are
// assigned by mixed-radix positional encoding, so neither direction ever
// enumerates the full product.
type Encoder struct {
	blocks []block
	bySig  map[Signature]int
	total  int
}

type block struct {
	sig     Signature
	first   int
	size    int
	domains []*Domain
	strides []int
}

// NewEncoder builds an encoder for all signatures of the schema. Blocks
// are laid out in sorted signature order, starting at id 1.
func NewEncoder(schema PredicateSchema, doms ConstantsDomain) (*Encoder, error) {
	if err := schema.Validate(doms); err != nil {
		return nil, err
	}
	enc := &Encoder{bySig: make(map[Signature]int, len(schema))}
	next := 1
	for _, sig := range schema.Signatures() {
		b := block{sig: sig, first: next, size: 1}
		for _, name := range schema[sig] {
			b.domains = append(b.domains, doms[name])
		}
		b.strides = make([]int, sig.Arity)
		for i := sig.Arity - 1; i >= 0; i-- {
			b.strides[i] = b.size
			b.size *= b.domains[i].Size()
		}
		if b.size == 0 {
			return nil, &SchemaError{Sig: sig, Reason: "empty argument domain"}
		}
		enc.bySig[sig] = len(enc.blocks)
		enc.blocks = append(enc.blocks, b)
		next += b.size
	}
	enc.total = next - 1
	return enc, nil
}

// NumAtoms returns the total number of encodable ground atoms. Valid ids
// are 1..NumAtoms.
func (enc *Encoder) NumAtoms() int {
	return enc.total
}

// Encode returns the id of the ground atom with the given signature and
// constant arguments.
func (enc *Encoder) Encode(sig Signature, args []string) (int, error) {
	bi, ok := enc.bySig[sig]
	if !ok {
		return 0, &SchemaError{Sig: sig, Reason: "undeclared predicate"}
	}
	b := &enc.blocks[bi]
	if len(args) != sig.Arity {
		return 0, &SchemaError{Sig: sig, Reason: fmt.Sprintf("got %d arguments", len(args))}
	}
	id := b.first
	for i, arg := range args {
		j, ok := b.domains[i].Index(arg)
		if !ok {
			return 0, &SchemaError{Sig: sig, Reason: fmt.Sprintf("constant %s not in domain %q", arg, b.domains[i].Name)}
		}
		id += j * b.strides[i]
	}
	return id, nil
}

// Decode returns the signature and constant arguments of the atom with the
// given id. It panics if id lies outside every signature's block: such an
// id cannot have been produced by Encode, so the caller broke an internal
// invariant.
func (enc *Encoder) Decode(id int) (Signature, []string) {
	b := enc.blockOf(id)
	if b == nil {
		panic(fmt.Sprintf("mln: atom id %d out of range [1,%d]", id, enc.total))
	}
	off := id - b.first
	args := make([]string, b.sig.Arity)
	for i := range args {
		args[i] = b.domains[i].Const(off / b.strides[i])
		off %= b.strides[i]
	}
	return b.sig, args
}

// SignatureOf returns the signature owning the block that contains id,
// without decoding the arguments. It panics on an out-of-range id.
func (enc *Encoder) SignatureOf(id int) Signature {
	b := enc.blockOf(id)
	if b == nil {
		panic(fmt.Sprintf("mln: atom id %d out of range [1,%d]", id, enc.total))
	}
	return b.sig
}

// Range returns the id block [first, last] of the given signature, both
// bounds inclusive, and false if the signature is not declared.
func (enc *Encoder) Range(sig Signature) (first, last int, ok bool) {
	bi, ok := enc.bySig[sig]
	if !ok {
		return 0, 0, false
	}
	b := &enc.blocks[bi]
	return b.first, b.first + b.size - 1, true
}

// AtomStringOf returns the textual form of the atom with the given id.
func (enc *Encoder) AtomStringOf(id int) string {
	sig, args := enc.Decode(id)
	return AtomString(sig.Name, args)
}

func (enc *Encoder) blockOf(id int) *block {
	if id < 1 || id > enc.total {
		return nil
	}
	i := sort.Search(len(enc.blocks), func(i int) bool {
		return enc.blocks[i].first+enc.blocks[i].size > id
	})
	return &enc.blocks[i]
}
