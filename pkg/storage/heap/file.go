package heap

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
)

// HeapFile is a collection of unordered pages stored in a single OS file.
// Pages are numbered sequentially from 0; the file is extended only by
// appending whole pages.
type HeapFile struct {
	file      *os.File
	path      string
	id        int
	tupleDesc *tuple.TupleDescription

	// appendMu serializes file extension so NumPages is monotone across
	// concurrent inserters.
	appendMu sync.Mutex
}

// NewHeapFile opens (or creates) the heap file at the given path. The table
// id is derived from the absolute path, so every process derives the same id
// for the same file.
func NewHeapFile(path string, td *tuple.TupleDescription) (*HeapFile, error) {
	if path == "" {
		return nil, fmt.Errorf("heap file path cannot be empty")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open heap file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &HeapFile{
		file:      f,
		path:      abs,
		id:        fileID(abs),
		tupleDesc: td,
	}, nil
}

func fileID(path string) int {
	h := fnv.New32a()
	h.Write([]byte(path))
	return int(int32(h.Sum32()))
}

func (hf *HeapFile) ID() int {
	return hf.id
}

func (hf *HeapFile) TupleDesc() *tuple.TupleDescription {
	return hf.tupleDesc
}

// NumPages returns the number of whole pages currently in the file.
func (hf *HeapFile) NumPages() int {
	info, err := hf.file.Stat()
	if err != nil {
		return 0
	}
	return int(info.Size() / page.PageSize)
}

// ReadPage reads the page at pid.PageNo directly from disk. This bypasses
// the buffer pool; normal access goes through Pool.GetPage.
func (hf *HeapFile) ReadPage(pid tuple.PageID) (page.Page, error) {
	if pid == nil {
		return nil, fmt.Errorf("page ID cannot be nil")
	}
	if pid.TableID() != hf.id {
		return nil, fmt.Errorf("page %s does not belong to table %d", pid, hf.id)
	}

	data := make([]byte, page.PageSize)
	offset := int64(pid.PageNo()) * page.PageSize
	if _, err := hf.file.ReadAt(data, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return NewEmptyHeapPage(NewHeapPageID(hf.id, pid.PageNo()), hf.tupleDesc)
		}
		return nil, fmt.Errorf("failed to read page %s: %w", pid, err)
	}

	return NewHeapPage(NewHeapPageID(hf.id, pid.PageNo()), data, hf.tupleDesc)
}

// WritePage writes the page to its slot in the file.
func (hf *HeapFile) WritePage(p page.Page) error {
	if p == nil {
		return fmt.Errorf("page cannot be nil")
	}

	offset := int64(p.ID().PageNo()) * page.PageSize
	if _, err := hf.file.WriteAt(p.PageData(), offset); err != nil {
		return fmt.Errorf("failed to write page %s: %w", p.ID(), err)
	}
	return hf.file.Sync()
}

// InsertTuple scans pages in order for one with a free slot, probing each
// under a read lock and re-acquiring with write intent before inserting. If
// every page is full, a fresh empty page is appended under the file's append
// mutex and the tuple goes there. Returns the pages dirtied.
func (hf *HeapFile) InsertTuple(tid *transaction.TransactionID, t *tuple.Tuple, pool page.Pool) ([]page.Page, error) {
	numPages := hf.NumPages()
	for i := 0; i < numPages; i++ {
		pid := NewHeapPageID(hf.id, i)

		p, err := pool.GetPage(tid, pid, page.ReadOnly)
		if err != nil {
			return nil, err
		}
		hp := p.(*HeapPage)

		if hp.NumEmptySlots() == 0 {
			// The probe lock is of no further use on a full page, unless
			// this transaction dirtied the page itself and must keep its lock.
			if hp.IsDirty() != tid {
				pool.ReleasePage(tid, pid)
			}
			continue
		}

		p, err = pool.GetPage(tid, pid, page.ReadWrite)
		if err != nil {
			return nil, err
		}
		hp = p.(*HeapPage)

		if err := hp.InsertTuple(t); err != nil {
			if err == ErrPageFull {
				// Lost the race for the last slot; keep scanning.
				continue
			}
			return nil, err
		}
		return []page.Page{hp}, nil
	}

	pid, err := hf.appendEmptyPage()
	if err != nil {
		return nil, err
	}

	p, err := pool.GetPage(tid, pid, page.ReadWrite)
	if err != nil {
		return nil, err
	}
	hp := p.(*HeapPage)
	if err := hp.InsertTuple(t); err != nil {
		return nil, err
	}
	return []page.Page{hp}, nil
}

func (hf *HeapFile) appendEmptyPage() (*HeapPageID, error) {
	hf.appendMu.Lock()
	defer hf.appendMu.Unlock()

	pageNo := hf.NumPages()
	empty := make([]byte, page.PageSize)
	offset := int64(pageNo) * page.PageSize
	if _, err := hf.file.WriteAt(empty, offset); err != nil {
		return nil, fmt.Errorf("failed to extend heap file: %w", err)
	}
	return NewHeapPageID(hf.id, pageNo), nil
}

// DeleteTuple resolves the owning page from t's RecordID, acquires it with
// write intent, and deletes the tuple.
func (hf *HeapFile) DeleteTuple(tid *transaction.TransactionID, t *tuple.Tuple, pool page.Pool) (page.Page, error) {
	if t == nil || t.RecordID == nil {
		return nil, fmt.Errorf("tuple has no record ID")
	}

	p, err := pool.GetPage(tid, t.RecordID.PageID, page.ReadWrite)
	if err != nil {
		return nil, err
	}

	hp := p.(*HeapPage)
	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	return hp, nil
}

// Iterator walks every tuple in every page in order, loading one page at a
// time through the pool with read intent.
func (hf *HeapFile) Iterator(tid *transaction.TransactionID, pool page.Pool) page.TupleIterator {
	return NewHeapFileIterator(hf, tid, pool)
}

// Close closes the underlying OS file.
func (hf *HeapFile) Close() error {
	return hf.file.Close()
}
