package memory

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"heapdb/pkg/catalog"
	"heapdb/pkg/concurrency/lock"
	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/log"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
)

// ErrAllPagesDirty is returned when eviction finds no clean page to drop.
// Under NO-STEAL a dirty page can never be written out early, so a pool full
// of dirty pages cannot make room.
var ErrAllPagesDirty = errors.New("all pages dirty")

// BufferPool caches up to a fixed number of pages and mediates all page
// access. Fetching a page acquires the matching lock from the LockPool, so a
// returned page is always protected by strict two-phase locking.
//
// The pool's cache and eviction queue share the LockPool's latch: page
// installation, eviction and lock-table mutation serialize on one mutex.
type BufferPool struct {
	capacity int
	catalog  *catalog.Catalog
	logFile  *log.LogFile
	locks    *lock.LockPool

	// cache and evictionQueue are guarded by locks.Latch(). Every cached
	// page appears in the queue exactly once, oldest first.
	cache         map[tuple.PageKey]page.Page
	evictionQueue []tuple.PageKey
}

// NewBufferPool creates a pool caching up to capacity pages.
func NewBufferPool(capacity int, cat *catalog.Catalog, lf *log.LogFile) *BufferPool {
	return &BufferPool{
		capacity: capacity,
		catalog:  cat,
		logFile:  lf,
		locks:    lock.NewLockPool(),
		cache:    make(map[tuple.PageKey]page.Page),
	}
}

// Locks exposes the lock pool, mainly for tests and the transaction driver.
func (bp *BufferPool) Locks() *lock.LockPool {
	return bp.locks
}

// GetPage returns the requested page, reading it from its file if absent,
// after acquiring the lock implied by perm. It may block waiting for the
// lock and may return a TransactionAbortedError when the wait would
// deadlock.
func (bp *BufferPool) GetPage(tid *transaction.TransactionID, pid tuple.PageID, perm page.Permissions) (page.Page, error) {
	mu := bp.locks.Latch()

	mu.Lock()
	p, err := bp.findOrInstall(pid)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	canonical := p.ID()
	mu.Unlock()

	mode := lock.Shared
	if perm == page.ReadWrite {
		mode = lock.Exclusive
	}
	if err := bp.locks.Acquire(tid, canonical, mode); err != nil {
		return nil, err
	}

	// The page may have been evicted while this transaction waited for the
	// lock; holding the lock now, it can safely be re-installed.
	mu.Lock()
	defer mu.Unlock()
	if cached, ok := bp.cache[canonical.Key()]; ok {
		return cached, nil
	}
	return bp.findOrInstall(canonical)
}

// findOrInstall returns the cached page, evicting and reading from disk as
// needed. Caller holds the latch. The cache key is the canonical PageID
// returned by the page itself.
func (bp *BufferPool) findOrInstall(pid tuple.PageID) (page.Page, error) {
	key := pid.Key()
	if p, ok := bp.cache[key]; ok {
		bp.touch(key)
		return p, nil
	}

	for len(bp.cache) >= bp.capacity {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	f, err := bp.catalog.DbFile(pid.TableID())
	if err != nil {
		return nil, fmt.Errorf("table %d not found: %v", pid.TableID(), err)
	}

	p, err := f.ReadPage(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to read page from disk: %v", err)
	}

	canonical := p.ID()
	key = canonical.Key()
	bp.cache[key] = p
	bp.locks.RegisterPage(canonical)
	bp.evictionQueue = append(bp.evictionQueue, key)
	return p, nil
}

// touch moves an already-cached page to the tail of the eviction queue.
func (bp *BufferPool) touch(key tuple.PageKey) {
	for i, k := range bp.evictionQueue {
		if k == key {
			bp.evictionQueue = append(bp.evictionQueue[:i], bp.evictionQueue[i+1:]...)
			break
		}
	}
	bp.evictionQueue = append(bp.evictionQueue, key)
}

// evictOne implements the NO-STEAL eviction policy: walk the queue oldest
// first and drop the first clean page. Dirty pages are never written out
// before their transaction commits, so a pool of only dirty pages fails with
// ErrAllPagesDirty. Kept as a single function so the policy can be swapped.
// Caller holds the latch.
func (bp *BufferPool) evictOne() error {
	for _, key := range bp.evictionQueue {
		p, ok := bp.cache[key]
		if !ok || p.IsDirty() != nil {
			continue
		}

		if err := bp.flushLocked(key); err != nil {
			return err
		}
		bp.dropLocked(key)
		return nil
	}
	return ErrAllPagesDirty
}

// dropLocked removes a page from the cache, the eviction queue, and the lock
// pool's metadata. Caller holds the latch.
func (bp *BufferPool) dropLocked(key tuple.PageKey) {
	delete(bp.cache, key)
	for i, k := range bp.evictionQueue {
		if k == key {
			bp.evictionQueue = append(bp.evictionQueue[:i], bp.evictionQueue[i+1:]...)
			break
		}
	}
	bp.locks.RemovePage(key)
}

// ReleasePage drops tid's lock on a page without any page fixup. Only safe
// for locks that protected reads which no longer matter, such as the probe
// lock on a full page during insert.
func (bp *BufferPool) ReleasePage(tid *transaction.TransactionID, pid tuple.PageID) {
	bp.locks.Release(tid, pid)
}

// HoldsLock reports the mode tid holds on pid, if any.
func (bp *BufferPool) HoldsLock(tid *transaction.TransactionID, pid tuple.PageID) (lock.Mode, bool) {
	return bp.locks.HoldsLock(tid, pid)
}

// InsertTuple adds t to the given table on behalf of tid, marking every page
// the insert dirtied and keeping it cached.
func (bp *BufferPool) InsertTuple(tid *transaction.TransactionID, tableID int, t *tuple.Tuple) error {
	f, err := bp.catalog.DbFile(tableID)
	if err != nil {
		return fmt.Errorf("table %d not found: %v", tableID, err)
	}

	dirtied, err := f.InsertTuple(tid, t, bp)
	if err != nil {
		return err
	}

	bp.markDirty(tid, dirtied)
	return nil
}

// DeleteTuple removes t from its table on behalf of tid.
func (bp *BufferPool) DeleteTuple(tid *transaction.TransactionID, t *tuple.Tuple) error {
	if t == nil || t.RecordID == nil {
		return fmt.Errorf("tuple has no record ID")
	}

	f, err := bp.catalog.DbFile(t.RecordID.PageID.TableID())
	if err != nil {
		return fmt.Errorf("table %d not found: %v", t.RecordID.PageID.TableID(), err)
	}

	dirtied, err := f.DeleteTuple(tid, t, bp)
	if err != nil {
		return err
	}

	bp.markDirty(tid, []page.Page{dirtied})
	return nil
}

func (bp *BufferPool) markDirty(tid *transaction.TransactionID, pages []page.Page) {
	mu := bp.locks.Latch()
	mu.Lock()
	defer mu.Unlock()

	for _, p := range pages {
		p.MarkDirty(true, tid)
		key := p.ID().Key()
		if _, ok := bp.cache[key]; !ok {
			bp.cache[key] = p
			bp.evictionQueue = append(bp.evictionQueue, key)
		}
	}
}

// TransactionComplete commits or aborts tid.
//
// Commit flushes every page the transaction holds (forcing the log record
// ahead of the page write) and then re-baselines each page's before-image.
// Abort reloads each held page's on-disk image, discarding in-memory
// modifications. Both variants release the transaction's locks only after
// the page fixup, so no other transaction observes intermediate state.
func (bp *BufferPool) TransactionComplete(tid *transaction.TransactionID, commit bool) error {
	held := bp.locks.HeldPages(tid)

	if commit {
		for _, pid := range held {
			if err := bp.FlushPage(pid); err != nil {
				return fmt.Errorf("commit failed: unable to flush page %v: %v", pid, err)
			}

			mu := bp.locks.Latch()
			mu.Lock()
			if p, ok := bp.cache[pid.Key()]; ok {
				p.SetBeforeImage()
			}
			mu.Unlock()
		}
	} else {
		mu := bp.locks.Latch()
		mu.Lock()
		for _, pid := range held {
			key := pid.Key()
			if _, ok := bp.cache[key]; !ok {
				continue
			}

			f, err := bp.catalog.DbFile(pid.TableID())
			if err != nil {
				mu.Unlock()
				return err
			}
			fresh, err := f.ReadPage(pid)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("abort failed: unable to reload page %v: %v", pid, err)
			}
			bp.cache[key] = fresh
		}
		mu.Unlock()
	}

	bp.locks.ReleaseLocks(tid)

	if !commit {
		// A retrying transaction should not immediately re-collide with
		// the survivor of the deadlock.
		time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
	}
	return nil
}

// FlushPage writes the named page to disk if it is dirty. The log record is
// appended and forced before the page write, and the page is marked clean
// before the bytes go out.
func (bp *BufferPool) FlushPage(pid tuple.PageID) error {
	mu := bp.locks.Latch()
	mu.Lock()
	defer mu.Unlock()
	return bp.flushLocked(pid.Key())
}

func (bp *BufferPool) flushLocked(key tuple.PageKey) error {
	p, ok := bp.cache[key]
	if !ok {
		return nil
	}

	tid := p.IsDirty()
	if tid == nil {
		return nil
	}

	if bp.logFile != nil {
		if err := bp.logFile.LogWrite(tid, p.BeforeImage().PageData(), p.PageData()); err != nil {
			return err
		}
		if err := bp.logFile.Force(); err != nil {
			return err
		}
	}

	f, err := bp.catalog.DbFile(p.ID().TableID())
	if err != nil {
		return err
	}

	p.MarkDirty(false, nil)
	return f.WritePage(p)
}

// FlushPages writes every page dirtied by tid to disk.
func (bp *BufferPool) FlushPages(tid *transaction.TransactionID) error {
	mu := bp.locks.Latch()
	mu.Lock()
	defer mu.Unlock()

	for _, key := range append([]tuple.PageKey(nil), bp.evictionQueue...) {
		p, ok := bp.cache[key]
		if !ok {
			continue
		}
		if p.IsDirty() == tid {
			if err := bp.flushLocked(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushAllPages writes every dirty page to disk. Breaks NO-STEAL if used
// while transactions are in flight; meant for shutdown.
func (bp *BufferPool) FlushAllPages() error {
	mu := bp.locks.Latch()
	mu.Lock()
	defer mu.Unlock()

	for _, key := range append([]tuple.PageKey(nil), bp.evictionQueue...) {
		if err := bp.flushLocked(key); err != nil {
			return err
		}
	}
	return nil
}

// NumCached returns the number of pages currently cached.
func (bp *BufferPool) NumCached() int {
	mu := bp.locks.Latch()
	mu.Lock()
	defer mu.Unlock()
	return len(bp.cache)
}
