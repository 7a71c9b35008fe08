package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"heapdb/pkg/catalog"
	"heapdb/pkg/concurrency/lock"
	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/log"
	"heapdb/pkg/storage/heap"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

type poolFixture struct {
	pool *BufferPool
	cat  *catalog.Catalog
	file *heap.HeapFile
	td   *tuple.TupleDescription
}

func newFixture(t *testing.T, capacity int) *poolFixture {
	td, err := tuple.NewTupleDesc([]types.Type{types.IntType, types.IntType}, []string{"a", "b"})
	require.NoError(t, err)

	dir := t.TempDir()
	hf, err := heap.NewHeapFile(filepath.Join(dir, "table.dat"), td)
	require.NoError(t, err)
	t.Cleanup(func() { hf.Close() })

	lf, err := log.NewLogFile(filepath.Join(dir, "heapdb.log"))
	require.NoError(t, err)
	t.Cleanup(func() { lf.Close() })

	cat := catalog.NewCatalog()
	cat.AddTable(hf, "table")

	return &poolFixture{
		pool: NewBufferPool(capacity, cat, lf),
		cat:  cat,
		file: hf,
		td:   td,
	}
}

func (fx *poolFixture) tuple(t *testing.T, a, b int32) *tuple.Tuple {
	tup := tuple.NewTuple(fx.td)
	require.NoError(t, tup.SetField(0, types.NewIntField(a)))
	require.NoError(t, tup.SetField(1, types.NewIntField(b)))
	return tup
}

// fillPages materializes n pages of tuples, committing page by page so the
// pool never holds more than one dirty page at a time.
func (fx *poolFixture) fillPages(t *testing.T, n int) {
	hp, err := heap.NewEmptyHeapPage(heap.NewHeapPageID(fx.file.ID(), 0), fx.td)
	require.NoError(t, err)
	perPage := hp.NumSlots()

	for p := 0; p < n; p++ {
		tid := transaction.NewTransactionID()
		for i := 0; i < perPage; i++ {
			require.NoError(t, fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, int32(p*perPage+i), 0)))
		}
		require.NoError(t, fx.pool.TransactionComplete(tid, true))
	}
}

func scanAll(t *testing.T, fx *poolFixture, tid *transaction.TransactionID) []*tuple.Tuple {
	it := fx.file.Iterator(tid, fx.pool)
	require.NoError(t, it.Open())
	defer it.Close()

	var out []*tuple.Tuple
	for {
		hasNext, err := it.HasNext()
		require.NoError(t, err)
		if !hasNext {
			return out
		}
		tup, err := it.Next()
		require.NoError(t, err)
		out = append(out, tup)
	}
}

func TestGetPageCachesAndLocks(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)
	tid := transaction.NewTransactionID()

	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, 1, 2)))
	require.NoError(fx.pool.TransactionComplete(tid, true))

	tid2 := transaction.NewTransactionID()
	pid := heap.NewHeapPageID(fx.file.ID(), 0)

	p, err := fx.pool.GetPage(tid2, pid, page.ReadOnly)
	require.NoError(err)
	require.NotNil(p)

	mode, held := fx.pool.HoldsLock(tid2, pid)
	require.True(held)
	require.Equal(lock.Shared, mode)

	// A second fetch returns the cached page.
	again, err := fx.pool.GetPage(tid2, pid, page.ReadOnly)
	require.NoError(err)
	require.Same(p, again)

	require.NoError(fx.pool.TransactionComplete(tid2, true))
}

func TestWriteIntentUpgradesLock(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)
	tid := transaction.NewTransactionID()

	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, 1, 2)))
	require.NoError(fx.pool.TransactionComplete(tid, true))

	tid2 := transaction.NewTransactionID()
	pid := heap.NewHeapPageID(fx.file.ID(), 0)

	_, err := fx.pool.GetPage(tid2, pid, page.ReadOnly)
	require.NoError(err)
	_, err = fx.pool.GetPage(tid2, pid, page.ReadWrite)
	require.NoError(err)

	mode, held := fx.pool.HoldsLock(tid2, pid)
	require.True(held)
	require.Equal(lock.Exclusive, mode)

	require.NoError(fx.pool.TransactionComplete(tid2, true))
}

func TestEvictionKeepsCacheBounded(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 3)

	fx.fillPages(t, 5)

	reader := transaction.NewTransactionID()
	tuples := scanAll(t, fx, reader)
	require.NotEmpty(tuples)
	require.LessOrEqual(fx.pool.NumCached(), 3)
	require.NoError(fx.pool.TransactionComplete(reader, true))
}

func TestAllPagesDirtyFailsEviction(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 2)
	tid := transaction.NewTransactionID()

	// Dirty more pages than the pool holds without committing.
	err := func() error {
		hp, err := heap.NewEmptyHeapPage(heap.NewHeapPageID(fx.file.ID(), 0), fx.td)
		require.NoError(err)
		perPage := hp.NumSlots()

		for i := 0; i < perPage*3; i++ {
			if err := fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, int32(i), 0)); err != nil {
				return err
			}
		}
		return nil
	}()

	require.Error(err)
	require.ErrorIs(err, ErrAllPagesDirty)
}

func TestCommitIsDurable(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)
	tid := transaction.NewTransactionID()

	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, 1, 2)))
	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, 3, 4)))
	require.NoError(fx.pool.TransactionComplete(tid, true))

	// Reading the file from disk, bypassing the cache, shows the committed
	// tuples.
	p, err := fx.file.ReadPage(heap.NewHeapPageID(fx.file.ID(), 0))
	require.NoError(err)
	require.Len(p.(*heap.HeapPage).Tuples(), 2)
}

func TestNoStealNeverWritesDirty(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)
	tid := transaction.NewTransactionID()

	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, 1, 2)))

	// Before commit nothing has reached the disk image.
	p, err := fx.file.ReadPage(heap.NewHeapPageID(fx.file.ID(), 0))
	require.NoError(err)
	require.Empty(p.(*heap.HeapPage).Tuples())
}

func TestAbortDiscardsChanges(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)

	setup := transaction.NewTransactionID()
	require.NoError(fx.pool.InsertTuple(setup, fx.file.ID(), fx.tuple(t, 1, 2)))
	require.NoError(fx.pool.TransactionComplete(setup, true))

	victim := transaction.NewTransactionID()
	require.NoError(fx.pool.InsertTuple(victim, fx.file.ID(), fx.tuple(t, 9, 9)))
	require.NoError(fx.pool.TransactionComplete(victim, false))

	// Only the committed tuple remains visible.
	reader := transaction.NewTransactionID()
	tuples := scanAll(t, fx, reader)
	require.Len(tuples, 1)
	require.Equal("1\t2", tuples[0].String())
	require.NoError(fx.pool.TransactionComplete(reader, true))
}

func TestDeleteTupleThroughPool(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)

	tid := transaction.NewTransactionID()
	tup := fx.tuple(t, 5, 6)
	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), tup))
	require.NotNil(tup.RecordID)

	require.NoError(fx.pool.DeleteTuple(tid, tup))
	require.NoError(fx.pool.TransactionComplete(tid, true))

	reader := transaction.NewTransactionID()
	require.Empty(scanAll(t, fx, reader))
	require.NoError(fx.pool.TransactionComplete(reader, true))
}

func TestLocksReleasedAfterComplete(t *testing.T) {
	require := require.New(t)
	fx := newFixture(t, 10)
	tid := transaction.NewTransactionID()

	require.NoError(fx.pool.InsertTuple(tid, fx.file.ID(), fx.tuple(t, 1, 2)))
	pid := heap.NewHeapPageID(fx.file.ID(), 0)

	_, held := fx.pool.HoldsLock(tid, pid)
	require.True(held)

	require.NoError(fx.pool.TransactionComplete(tid, true))

	_, held = fx.pool.HoldsLock(tid, pid)
	require.False(held)
}
