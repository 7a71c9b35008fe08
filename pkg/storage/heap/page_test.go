package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

func twoIntDesc(t *testing.T) *tuple.TupleDescription {
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType, types.IntType}, []string{"a", "b"})
	require.NoError(t, err)
	return td
}

func makeTuple(t *testing.T, td *tuple.TupleDescription, values ...int32) *tuple.Tuple {
	tup := tuple.NewTuple(td)
	for i, v := range values {
		require.NoError(t, tup.SetField(i, types.NewIntField(v)))
	}
	return tup
}

func emptyPage(t *testing.T, td *tuple.TupleDescription) *HeapPage {
	hp, err := NewEmptyHeapPage(NewHeapPageID(1, 0), td)
	require.NoError(t, err)
	return hp
}

func TestSlotCountFormula(t *testing.T) {
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	// Each tuple occupies its bytes plus one header bit.
	expected := (page.PageSize * 8) / (td.Size()*8 + 1)
	assert.Equal(t, expected, hp.NumSlots())
	assert.Equal(t, expected, hp.NumEmptySlots())
}

func TestInsertAssignsLowestFreeSlot(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	first := makeTuple(t, td, 1, 2)
	require.NoError(hp.InsertTuple(first))
	require.NotNil(first.RecordID)
	require.Equal(0, first.RecordID.TupleNum)
	require.True(hp.SlotUsed(0))

	second := makeTuple(t, td, 3, 4)
	require.NoError(hp.InsertTuple(second))
	require.Equal(1, second.RecordID.TupleNum)

	// Deleting the first tuple frees slot 0 for the next insert.
	require.NoError(hp.DeleteTuple(first))
	require.Nil(first.RecordID)
	require.False(hp.SlotUsed(0))

	third := makeTuple(t, td, 5, 6)
	require.NoError(hp.InsertTuple(third))
	require.Equal(0, third.RecordID.TupleNum)
}

func TestInsertSchemaMismatch(t *testing.T) {
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	other, err := tuple.NewTupleDesc([]types.Type{types.StringType}, nil)
	require.NoError(t, err)

	bad := tuple.NewTuple(other)
	require.NoError(t, bad.SetField(0, types.NewStringField("x")))

	assert.ErrorIs(t, hp.InsertTuple(bad), ErrSchemaMismatch)
}

func TestInsertUntilFull(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	n := hp.NumSlots()
	for i := 0; i < n; i++ {
		require.NoError(hp.InsertTuple(makeTuple(t, td, int32(i), int32(i+1))))
	}
	require.Equal(0, hp.NumEmptySlots())

	overflow := makeTuple(t, td, 99, 100)
	require.ErrorIs(hp.InsertTuple(overflow), ErrPageFull)
}

func TestDeleteErrors(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	// No record id.
	orphan := makeTuple(t, td, 1, 2)
	require.Error(hp.DeleteTuple(orphan))

	// Record id pointing at another page.
	elsewhere := makeTuple(t, td, 1, 2)
	elsewhere.RecordID = tuple.NewRecordID(NewHeapPageID(1, 7), 0)
	require.Error(hp.DeleteTuple(elsewhere))

	// Stored tuple differs.
	stored := makeTuple(t, td, 1, 2)
	require.NoError(hp.InsertTuple(stored))
	impostor := makeTuple(t, td, 9, 9)
	impostor.RecordID = tuple.NewRecordID(hp.pid, stored.RecordID.TupleNum)
	require.Error(hp.DeleteTuple(impostor))

	// The real tuple still deletes fine.
	require.NoError(hp.DeleteTuple(stored))
}

func TestPageDataRoundTrip(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	for i := 0; i < 5; i++ {
		require.NoError(hp.InsertTuple(makeTuple(t, td, int32(i*10), int32(i*10+1))))
	}
	// Punch a hole so the bitmap is not a prefix of ones.
	hole := hp.Tuples()[2]
	require.NoError(hp.DeleteTuple(hole))

	reparsed, err := NewHeapPage(hp.pid, hp.PageData(), td)
	require.NoError(err)
	require.True(hp.Equals(reparsed))

	// Slot bits and stored tuples stay consistent after the round trip.
	for i := 0; i < reparsed.NumSlots(); i++ {
		tup, err := reparsedTupleAt(reparsed, i)
		require.NoError(err)
		require.Equal(reparsed.SlotUsed(i), tup != nil)
		if tup != nil {
			require.NotNil(tup.RecordID)
			require.Equal(i, tup.RecordID.TupleNum)
		}
	}
}

func reparsedTupleAt(hp *HeapPage, i int) (*tuple.Tuple, error) {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	if i < 0 || i >= hp.numSlots {
		return nil, nil
	}
	return hp.tuples[i], nil
}

func TestInsertDeleteIsInverse(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	before := hp.PageData()

	tup := makeTuple(t, td, 42, 43)
	require.NoError(hp.InsertTuple(tup))
	require.NoError(hp.DeleteTuple(tup))
	require.Nil(tup.RecordID)

	require.Equal(before, hp.PageData())
}

func TestHeaderBitOrderIsLittleEndian(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	require.NoError(hp.InsertTuple(makeTuple(t, td, 1, 2)))
	data := hp.PageData()

	// Slot 0 occupies the lowest bit of the first header byte.
	require.Equal(byte(1), data[0]&1)
}

func TestBeforeImage(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	// The initial before-image is the page as constructed.
	before := hp.BeforeImage().(*HeapPage)
	require.Equal(0, len(before.Tuples()))

	require.NoError(hp.InsertTuple(makeTuple(t, td, 1, 2)))

	// Still the old snapshot until SetBeforeImage.
	before = hp.BeforeImage().(*HeapPage)
	require.Equal(0, len(before.Tuples()))

	hp.SetBeforeImage()
	before = hp.BeforeImage().(*HeapPage)
	require.Equal(1, len(before.Tuples()))
}

func TestMarkDirty(t *testing.T) {
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	assert.Nil(t, hp.IsDirty())

	tid := newTID()
	hp.MarkDirty(true, tid)
	assert.Equal(t, tid, hp.IsDirty())

	hp.MarkDirty(false, nil)
	assert.Nil(t, hp.IsDirty())
}

func TestPageIterator(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hp := emptyPage(t, td)

	for i := 0; i < 3; i++ {
		require.NoError(hp.InsertTuple(makeTuple(t, td, int32(i), 0)))
	}

	it := hp.Iterator()
	require.NoError(it.Open())

	var seen []string
	for {
		hasNext, err := it.HasNext()
		require.NoError(err)
		if !hasNext {
			break
		}
		tup, err := it.Next()
		require.NoError(err)
		seen = append(seen, tup.String())
	}
	require.Equal([]string{"0\t0", "1\t0", "2\t0"}, seen)

	// Exhausted iterators stay exhausted and Next errors.
	hasNext, err := it.HasNext()
	require.NoError(err)
	require.False(hasNext)
	_, err = it.Next()
	require.Error(err)

	require.NoError(it.Rewind())
	hasNext, err = it.HasNext()
	require.NoError(err)
	require.True(hasNext)
}
