package lock

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/tuple"
)

// testPageID is a lightweight PageID for lock tests.
type testPageID struct {
	table int
	page  int
}

func pid(table, page int) *testPageID {
	return &testPageID{table: table, page: page}
}

func (p *testPageID) TableID() int { return p.table }
func (p *testPageID) PageNo() int  { return p.page }
func (p *testPageID) Key() tuple.PageKey {
	return tuple.PageKey{TableID: p.table, PageNo: p.page}
}
func (p *testPageID) Equals(other tuple.PageID) bool {
	return other != nil && p.table == other.TableID() && p.page == other.PageNo()
}
func (p *testPageID) String() string {
	return fmt.Sprintf("testPageID(%d,%d)", p.table, p.page)
}

func TestSharedLocksCoexist(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	p := pid(1, 0)

	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()

	require.NoError(lp.Acquire(t1, p, Shared))
	require.NoError(lp.Acquire(t2, p, Shared))

	mode, held := lp.HoldsLock(t1, p)
	require.True(held)
	require.Equal(Shared, mode)
}

func TestReacquireIsIdempotent(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	p := pid(1, 0)
	tid := transaction.NewTransactionID()

	require.NoError(lp.Acquire(tid, p, Shared))
	require.NoError(lp.Acquire(tid, p, Shared))

	require.NoError(lp.Acquire(tid, p, Exclusive))
	// Exclusive is stronger; a later shared request is already satisfied.
	require.NoError(lp.Acquire(tid, p, Shared))

	mode, held := lp.HoldsLock(tid, p)
	require.True(held)
	require.Equal(Exclusive, mode)
}

func TestUpgradeWhenSoleReader(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	p := pid(1, 0)
	tid := transaction.NewTransactionID()

	require.NoError(lp.Acquire(tid, p, Shared))
	require.NoError(lp.Acquire(tid, p, Exclusive))

	mode, held := lp.HoldsLock(tid, p)
	require.True(held)
	require.Equal(Exclusive, mode)
}

func TestExclusiveBlocksUntilRelease(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	p := pid(1, 0)

	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()

	require.NoError(lp.Acquire(t1, p, Exclusive))

	acquired := make(chan error, 1)
	go func() {
		acquired <- lp.Acquire(t2, p, Shared)
	}()

	select {
	case <-acquired:
		t.Fatal("shared lock granted while exclusive held")
	case <-time.After(50 * time.Millisecond):
	}

	lp.Release(t1, p)

	select {
	case err := <-acquired:
		require.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken after release")
	}
}

func TestDeadlockDetectionAbortsDetector(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	p1 := pid(1, 1)
	p2 := pid(1, 2)

	t1 := transaction.NewTransactionID()
	t2 := transaction.NewTransactionID()

	require.NoError(lp.Acquire(t1, p1, Shared))
	require.NoError(lp.Acquire(t2, p2, Shared))

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = lp.Acquire(t1, p2, Exclusive)
	}()
	// Give the first waiter a head start so the cycle forms.
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		errs[1] = lp.Acquire(t2, p1, Exclusive)
		if errs[1] != nil {
			// The detecting transaction aborts itself; releasing its
			// locks lets the survivor's upgrade proceed.
			lp.ReleaseLocks(t2)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock not resolved within bounded time")
	}

	aborted := 0
	for _, err := range errs {
		if err != nil {
			require.True(transaction.IsAborted(err))
			aborted++
		}
	}
	require.Equal(1, aborted, "exactly one transaction should abort")
}

func TestReleaseLocksClearsEverything(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	tid := transaction.NewTransactionID()

	pages := []*testPageID{pid(1, 0), pid(1, 1), pid(1, 2)}
	for _, p := range pages {
		require.NoError(lp.Acquire(tid, p, Exclusive))
	}
	require.Len(lp.HeldPages(tid), 3)

	lp.ReleaseLocks(tid)
	require.Empty(lp.HeldPages(tid))

	for _, p := range pages {
		_, held := lp.HoldsLock(tid, p)
		require.False(held)
	}
}

func TestHoldsLockOnUnknownPage(t *testing.T) {
	lp := NewLockPool()
	_, held := lp.HoldsLock(transaction.NewTransactionID(), pid(9, 9))
	assert.False(t, held)
}

func TestRemovePageDropsState(t *testing.T) {
	require := require.New(t)
	lp := NewLockPool()
	p := pid(1, 0)
	tid := transaction.NewTransactionID()

	require.NoError(lp.Acquire(tid, p, Shared))
	lp.Release(tid, p)

	lp.Latch().Lock()
	lp.RemovePage(p.Key())
	require.False(lp.IsLocked(p))
	lp.Latch().Unlock()
}
