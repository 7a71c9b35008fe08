package lock

import (
	"sync"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/tuple"
)

// Mode is the strength of a page lock.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

// pageLock is the lock state for a single page: the shared/exclusive counts,
// the holders with their modes, and a condition variable waiters block on.
//
// Invariant: shared > 0 implies exclusive == 0, and exclusive == 1 implies
// shared == 0, except transiently while the single remaining reader upgrades.
type pageLock struct {
	pid       tuple.PageID
	shared    int
	exclusive int
	holders   map[*transaction.TransactionID]Mode
	cond      *sync.Cond
}

// LockPool grants page-level shared/exclusive locks to transactions, with
// upgrade and wait-for-graph deadlock detection.
//
// One pool-wide mutex guards every lock table. The buffer pool shares the
// same mutex (via Latch) for its cache and eviction-queue mutations, so page
// installation, eviction, and lock metadata can never interleave badly.
// Waiters block on per-page condition variables built over that one mutex.
type LockPool struct {
	mu      sync.Mutex
	pages   map[tuple.PageKey]*pageLock
	waiting map[*transaction.TransactionID]map[tuple.PageKey]Mode
}

func NewLockPool() *LockPool {
	return &LockPool{
		pages:   make(map[tuple.PageKey]*pageLock),
		waiting: make(map[*transaction.TransactionID]map[tuple.PageKey]Mode),
	}
}

// Latch exposes the pool-wide mutex so the buffer pool can serialize its
// cache and eviction-queue mutations with the lock tables.
func (lp *LockPool) Latch() *sync.Mutex {
	return &lp.mu
}

// RegisterPage creates lock state for a page when the buffer pool installs
// it. Caller must hold the latch.
func (lp *LockPool) RegisterPage(pid tuple.PageID) {
	lp.ensureLocked(pid)
}

func (lp *LockPool) ensureLocked(pid tuple.PageID) *pageLock {
	key := pid.Key()
	pl, ok := lp.pages[key]
	if !ok {
		pl = &pageLock{
			pid:     pid,
			holders: make(map[*transaction.TransactionID]Mode),
			cond:    sync.NewCond(&lp.mu),
		}
		lp.pages[key] = pl
	}
	return pl
}

// Acquire grants tid a lock on pid in the requested mode, blocking until the
// request can be satisfied.
//
//   - Holding the page in the requested mode or stronger returns immediately.
//   - Holding Shared and requesting Exclusive upgrades once tid is the sole
//     reader and there is no exclusive holder.
//   - Otherwise the request waits on the page's condition variable: Shared
//     needs exclusive == 0, Exclusive needs shared == 0 and exclusive == 0.
//
// Before every wait, a depth-first search over the wait-for graph runs from
// tid. If the search comes back around to tid, a deadlock cycle exists and
// the detecting transaction aborts itself: Acquire returns a
// TransactionAbortedError without waiting.
func (lp *LockPool) Acquire(tid *transaction.TransactionID, pid tuple.PageID, mode Mode) error {
	if tid == nil {
		return nil
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	pl := lp.ensureLocked(pid)
	key := pid.Key()

	held, holding := pl.holders[tid]
	if holding && (held == mode || held == Exclusive) {
		return nil
	}
	upgrade := holding && held == Shared && mode == Exclusive

	for !grantable(pl, mode, upgrade) {
		lp.setWaiting(tid, key, mode)

		if lp.wouldDeadlock(tid, key) {
			lp.clearWaiting(tid, key)
			return &transaction.TransactionAbortedError{
				TID:    tid,
				Reason: "deadlock detected on " + pid.String(),
			}
		}

		pl.cond.Wait()
	}

	lp.clearWaiting(tid, key)

	if mode == Shared {
		pl.shared++
	} else {
		pl.exclusive = 1
		if upgrade {
			pl.shared = 0
		}
	}
	pl.holders[tid] = mode
	return nil
}

// grantable reports whether the request can be satisfied right now. An
// upgrade tolerates exactly one reader: the upgrading transaction itself.
func grantable(pl *pageLock, mode Mode, upgrade bool) bool {
	if pl.exclusive != 0 {
		return false
	}
	if mode == Shared {
		return true
	}

	allowedReaders := 0
	if upgrade {
		allowedReaders = 1
	}
	return pl.shared == allowedReaders
}

func (lp *LockPool) setWaiting(tid *transaction.TransactionID, key tuple.PageKey, mode Mode) {
	pages, ok := lp.waiting[tid]
	if !ok {
		pages = make(map[tuple.PageKey]Mode)
		lp.waiting[tid] = pages
	}
	pages[key] = mode
}

func (lp *LockPool) clearWaiting(tid *transaction.TransactionID, key tuple.PageKey) {
	if pages, ok := lp.waiting[tid]; ok {
		delete(pages, key)
		if len(pages) == 0 {
			delete(lp.waiting, tid)
		}
	}
}

// wouldDeadlock runs a DFS over the wait-for graph starting from tid's
// request on key. Edges go from a waiter to every holder of a page it waits
// on, then on through those holders' own waits. Re-encountering a
// transaction already on the search path means a cycle. Caller holds the
// latch.
func (lp *LockPool) wouldDeadlock(tid *transaction.TransactionID, key tuple.PageKey) bool {
	onPath := make(map[*transaction.TransactionID]bool)

	var visit func(t *transaction.TransactionID, k tuple.PageKey) bool
	visit = func(t *transaction.TransactionID, k tuple.PageKey) bool {
		pl, ok := lp.pages[k]
		if !ok {
			return false
		}
		if onPath[t] {
			return true
		}
		onPath[t] = true

		for holder := range pl.holders {
			if holder == t {
				continue
			}
			for waitKey := range lp.waiting[holder] {
				if visit(holder, waitKey) {
					return true
				}
			}
			delete(onPath, holder)
		}
		return false
	}

	return visit(tid, key)
}

// Release drops tid's lock on pid and wakes every waiter for the page.
func (lp *LockPool) Release(tid *transaction.TransactionID, pid tuple.PageID) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.releaseLocked(tid, pid.Key())
}

func (lp *LockPool) releaseLocked(tid *transaction.TransactionID, key tuple.PageKey) {
	pl, ok := lp.pages[key]
	if !ok {
		return
	}

	mode, holding := pl.holders[tid]
	if !holding {
		return
	}

	delete(pl.holders, tid)
	if mode == Shared {
		pl.shared--
	} else {
		pl.exclusive = 0
	}
	pl.cond.Broadcast()
}

// ReleaseLocks releases every page tid holds and clears its waiting set.
// The held pages are collected before any is released; their release order
// follows map iteration and is not fixed.
func (lp *LockPool) ReleaseLocks(tid *transaction.TransactionID) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	keys := make([]tuple.PageKey, 0)
	for key, pl := range lp.pages {
		if _, holding := pl.holders[tid]; holding {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		lp.releaseLocked(tid, key)
	}

	delete(lp.waiting, tid)
}

// HoldsLock returns the mode tid currently holds on pid, or false when it
// holds nothing. An in-flight upgrade still reports Shared.
func (lp *LockPool) HoldsLock(tid *transaction.TransactionID, pid tuple.PageID) (Mode, bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	pl, ok := lp.pages[pid.Key()]
	if !ok {
		return 0, false
	}
	mode, holding := pl.holders[tid]
	return mode, holding
}

// HeldPages returns the canonical PageIDs of every page tid holds a lock on.
func (lp *LockPool) HeldPages(tid *transaction.TransactionID) []tuple.PageID {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	var pids []tuple.PageID
	for _, pl := range lp.pages {
		if _, holding := pl.holders[tid]; holding {
			pids = append(pids, pl.pid)
		}
	}
	return pids
}

// IsLocked reports whether any transaction holds a lock on pid. Caller must
// hold the latch.
func (lp *LockPool) IsLocked(pid tuple.PageID) bool {
	pl, ok := lp.pages[pid.Key()]
	return ok && len(pl.holders) > 0
}

// RemovePage drops the lock state for an evicted page. Caller must hold the
// latch.
func (lp *LockPool) RemovePage(key tuple.PageKey) {
	delete(lp.pages, key)
	for _, pages := range lp.waiting {
		delete(pages, key)
	}
}
