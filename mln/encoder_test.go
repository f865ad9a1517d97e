package mln

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() (PredicateSchema, ConstantsDomain) {
	doms := ConstantsDomain{
		"person": NewDomain("person", "Anna", "Bob", "Chris"),
		"time":   NewDomain("time", "0", "1", "2", "3"),
	}
	schema := PredicateSchema{
		{Name: "Friends", Arity: 2}: {"person", "person"},
		{Name: "Smokes", Arity: 1}:  {"person"},
		{Name: "AliveAt", Arity: 2}: {"person", "time"},
	}
	return schema, doms
}

func TestEncoderRoundTrip(t *testing.T) {
	schema, doms := testSchema()
	enc, err := NewEncoder(schema, doms)
	require.NoError(t, err)
	require.Equal(t, 3*3+3+3*4, enc.NumAtoms())

	for id := 1; id <= enc.NumAtoms(); id++ {
		sig, args := enc.Decode(id)
		id2, err := enc.Encode(sig, args)
		require.NoError(t, err)
		require.Equal(t, id, id2, "decode/encode mismatch for %s", AtomString(sig.Name, args))
		require.Equal(t, sig, enc.SignatureOf(id))
	}
}

func TestEncoderBlocksAreContiguous(t *testing.T) {
	schema, doms := testSchema()
	enc, err := NewEncoder(schema, doms)
	require.NoError(t, err)

	next := 1
	for _, sig := range schema.Signatures() {
		first, last, ok := enc.Range(sig)
		require.True(t, ok)
		assert.Equal(t, next, first, "block for %s does not start where the previous one ended", sig)
		for id := first; id <= last; id++ {
			assert.Equal(t, sig, enc.SignatureOf(id))
		}
		next = last + 1
	}
	assert.Equal(t, enc.NumAtoms()+1, next)
}

func TestEncoderUnknownSignature(t *testing.T) {
	schema, doms := testSchema()
	enc, err := NewEncoder(schema, doms)
	require.NoError(t, err)

	_, err = enc.Encode(Signature{Name: "Drinks", Arity: 1}, []string{"Anna"})
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)

	_, err = enc.Encode(Signature{Name: "Smokes", Arity: 1}, []string{"Nobody"})
	require.ErrorAs(t, err, &serr)

	_, _, ok := enc.Range(Signature{Name: "Drinks", Arity: 1})
	assert.False(t, ok)
}

func TestEncoderDecodeOutOfRangePanics(t *testing.T) {
	schema, doms := testSchema()
	enc, err := NewEncoder(schema, doms)
	require.NoError(t, err)
	assert.Panics(t, func() { enc.Decode(0) })
	assert.Panics(t, func() { enc.Decode(enc.NumAtoms() + 1) })
}

func TestEncoderEmptyDomain(t *testing.T) {
	doms := ConstantsDomain{"void": NewDomain("void")}
	schema := PredicateSchema{{Name: "P", Arity: 1}: {"void"}}
	_, err := NewEncoder(schema, doms)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
}
