package heap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

func newTID() *transaction.TransactionID {
	return transaction.NewTransactionID()
}

// directPool is a minimal page.Pool for exercising the file layer without a
// buffer pool: pages are cached per id so mutations stay visible, and no
// locks are taken.
type directPool struct {
	files map[int]page.DbFile
	pages map[tuple.PageKey]page.Page
}

func newDirectPool(files ...page.DbFile) *directPool {
	dp := &directPool{
		files: make(map[int]page.DbFile),
		pages: make(map[tuple.PageKey]page.Page),
	}
	for _, f := range files {
		dp.files[f.ID()] = f
	}
	return dp
}

func (dp *directPool) GetPage(tid *transaction.TransactionID, pid tuple.PageID, perm page.Permissions) (page.Page, error) {
	if p, ok := dp.pages[pid.Key()]; ok {
		return p, nil
	}

	p, err := dp.files[pid.TableID()].ReadPage(pid)
	if err != nil {
		return nil, err
	}
	dp.pages[pid.Key()] = p
	return p, nil
}

func (dp *directPool) ReleasePage(tid *transaction.TransactionID, pid tuple.PageID) {}

func tempHeapFile(t *testing.T, td *tuple.TupleDescription) *HeapFile {
	hf, err := NewHeapFile(filepath.Join(t.TempDir(), "table.dat"), td)
	require.NoError(t, err)
	t.Cleanup(func() { hf.Close() })
	return hf
}

func TestReadPastEOFGivesEmptyPage(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)

	require.Equal(0, hf.NumPages())

	p, err := hf.ReadPage(NewHeapPageID(hf.ID(), 0))
	require.NoError(err)
	require.Equal(numSlotsPerPage(td), p.(*HeapPage).NumEmptySlots())
}

func TestWriteThenReadPage(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)

	hp, err := NewEmptyHeapPage(NewHeapPageID(hf.ID(), 0), td)
	require.NoError(err)
	require.NoError(hp.InsertTuple(makeTuple(t, td, 7, 8)))
	require.NoError(hf.WritePage(hp))

	require.Equal(1, hf.NumPages())

	read, err := hf.ReadPage(NewHeapPageID(hf.ID(), 0))
	require.NoError(err)

	tuples := read.(*HeapPage).Tuples()
	require.Len(tuples, 1)
	require.Equal("7\t8", tuples[0].String())
}

func TestReadPageWrongTable(t *testing.T) {
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)

	_, err := hf.ReadPage(NewHeapPageID(hf.ID()+1, 0))
	assert.Error(t, err)
}

func TestInsertAppendsWhenFull(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)
	pool := newDirectPool(hf)
	tid := newTID()

	// Two pages' worth of tuples plus one.
	perPage := numSlotsPerPage(td)
	total := perPage*2 + 1
	for i := 0; i < total; i++ {
		dirtied, err := hf.InsertTuple(tid, makeTuple(t, td, int32(i), int32(i)), pool)
		require.NoError(err)
		require.Len(dirtied, 1)
	}

	require.Equal(3, hf.NumPages())
}

func TestDeleteTuple(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)
	pool := newDirectPool(hf)
	tid := newTID()

	tup := makeTuple(t, td, 1, 2)
	_, err := hf.InsertTuple(tid, tup, pool)
	require.NoError(err)
	require.NotNil(tup.RecordID)

	dirtied, err := hf.DeleteTuple(tid, tup, pool)
	require.NoError(err)
	require.Nil(tup.RecordID)
	require.Equal(dirtied.(*HeapPage).NumSlots(), dirtied.(*HeapPage).NumEmptySlots())

	_, err = hf.DeleteTuple(tid, tup, pool)
	require.Error(err)
}

func TestFileIteratorWalksEveryPage(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)
	pool := newDirectPool(hf)
	tid := newTID()

	perPage := numSlotsPerPage(td)
	total := perPage + 10
	for i := 0; i < total; i++ {
		_, err := hf.InsertTuple(tid, makeTuple(t, td, int32(i), 0), pool)
		require.NoError(err)
	}

	it := hf.Iterator(tid, pool)
	require.NoError(it.Open())
	defer it.Close()

	seen := make(map[int32]bool)
	for {
		hasNext, err := it.HasNext()
		require.NoError(err)
		if !hasNext {
			break
		}

		tup, err := it.Next()
		require.NoError(err)
		f, err := tup.Field(0)
		require.NoError(err)
		seen[f.(*types.IntField).Value] = true
	}

	require.Len(seen, total)

	require.NoError(it.Rewind())
	hasNext, err := it.HasNext()
	require.NoError(err)
	require.True(hasNext)
}

func TestIteratorOnEmptyFile(t *testing.T) {
	require := require.New(t)
	td := twoIntDesc(t)
	hf := tempHeapFile(t, td)
	pool := newDirectPool(hf)

	it := hf.Iterator(newTID(), pool)
	require.NoError(it.Open())

	hasNext, err := it.HasNext()
	require.NoError(err)
	require.False(hasNext)

	_, err = it.Next()
	require.Error(err)
}
