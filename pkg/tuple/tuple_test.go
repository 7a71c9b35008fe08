package tuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heapdb/pkg/types"
)

func mustDesc(t *testing.T, fieldTypes []types.Type, names []string) *TupleDescription {
	td, err := NewTupleDesc(fieldTypes, names)
	require.NoError(t, err)
	return td
}

func TestTupleDescEqualityIgnoresNames(t *testing.T) {
	assert := assert.New(t)

	a := mustDesc(t, []types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	b := mustDesc(t, []types.Type{types.IntType, types.StringType}, nil)
	c := mustDesc(t, []types.Type{types.StringType, types.IntType}, nil)

	assert.True(a.Equals(b))
	assert.True(b.Equals(a))
	assert.False(a.Equals(c))
	assert.False(a.Equals(nil))
}

func TestTupleDescRequiresAField(t *testing.T) {
	_, err := NewTupleDesc(nil, nil)
	assert.Error(t, err)
}

func TestTupleDescSize(t *testing.T) {
	td := mustDesc(t, []types.Type{types.IntType, types.IntType, types.StringType}, nil)
	assert.Equal(t, 4+4+4+types.StringMaxSize, td.Size())
}

func TestCombineConcatenates(t *testing.T) {
	require := require.New(t)

	a := mustDesc(t, []types.Type{types.IntType}, []string{"x"})
	b := mustDesc(t, []types.Type{types.StringType, types.IntType}, []string{"y", "z"})

	merged := Combine(a, b)
	require.Equal(3, merged.NumFields())

	name, err := merged.FieldName(0)
	require.NoError(err)
	require.Equal("x", name)

	name, err = merged.FieldName(2)
	require.NoError(err)
	require.Equal("z", name)

	ft, err := merged.TypeAtIndex(1)
	require.NoError(err)
	require.Equal(types.StringType, ft)
}

func TestCombineWithNil(t *testing.T) {
	a := mustDesc(t, []types.Type{types.IntType}, nil)

	assert.Equal(t, a, Combine(a, nil))
	assert.Equal(t, a, Combine(nil, a))
	assert.Nil(t, Combine(nil, nil))
}

func TestTupleSetAndGetField(t *testing.T) {
	require := require.New(t)

	td := mustDesc(t, []types.Type{types.IntType, types.StringType}, nil)
	tup := NewTuple(td)

	require.NoError(tup.SetField(0, types.NewIntField(10)))
	require.NoError(tup.SetField(1, types.NewStringField("ten")))

	f, err := tup.Field(0)
	require.NoError(err)
	require.Equal("10", f.String())

	require.Error(tup.SetField(0, types.NewStringField("bad type")))
	require.Error(tup.SetField(5, types.NewIntField(1)))

	_, err = tup.Field(-1)
	require.Error(err)
}

func TestTupleEqualityAndHash(t *testing.T) {
	assert := assert.New(t)
	td := mustDesc(t, []types.Type{types.IntType, types.IntType}, nil)

	a := NewTuple(td)
	_ = a.SetField(0, types.NewIntField(1))
	_ = a.SetField(1, types.NewIntField(2))

	b := NewTuple(td)
	_ = b.SetField(0, types.NewIntField(1))
	_ = b.SetField(1, types.NewIntField(2))

	c := NewTuple(td)
	_ = c.SetField(0, types.NewIntField(1))
	_ = c.SetField(1, types.NewIntField(3))

	assert.True(a.Equals(b))
	assert.Equal(a.Hash(), b.Hash())
	assert.False(a.Equals(c))

	// RecordIDs do not affect equality.
	b.RecordID = NewRecordID(nil, 0)
	assert.True(a.Equals(b))
}

func TestTupleStringIsTabSeparated(t *testing.T) {
	td := mustDesc(t, []types.Type{types.IntType, types.StringType}, nil)
	tup := NewTuple(td)
	_ = tup.SetField(0, types.NewIntField(5))
	_ = tup.SetField(1, types.NewStringField("five"))

	assert.Equal(t, "5\tfive", tup.String())
}

func TestCombineTuples(t *testing.T) {
	require := require.New(t)

	left := NewTuple(mustDesc(t, []types.Type{types.IntType}, []string{"a"}))
	_ = left.SetField(0, types.NewIntField(1))

	right := NewTuple(mustDesc(t, []types.Type{types.IntType, types.IntType}, []string{"b", "c"}))
	_ = right.SetField(0, types.NewIntField(2))
	_ = right.SetField(1, types.NewIntField(3))

	joined, err := CombineTuples(left, right)
	require.NoError(err)
	require.Equal(3, joined.TupleDesc.NumFields())
	require.Equal("1\t2\t3", joined.String())

	_, err = CombineTuples(nil, right)
	require.Error(err)
}
