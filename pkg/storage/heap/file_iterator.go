package heap

import (
	"fmt"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
)

// HeapFileIterator provides iteration over all tuples in a HeapFile, loading
// pages lazily through the buffer pool with read intent.
type HeapFileIterator struct {
	file        *HeapFile
	tid         *transaction.TransactionID
	pool        page.Pool
	currentPage int
	pageIter    *HeapPageIterator
	isOpen      bool
}

// NewHeapFileIterator creates a new iterator for the given HeapFile
func NewHeapFileIterator(file *HeapFile, tid *transaction.TransactionID, pool page.Pool) *HeapFileIterator {
	return &HeapFileIterator{
		file:        file,
		tid:         tid,
		pool:        pool,
		currentPage: -1,
	}
}

// Open initializes the iterator
func (it *HeapFileIterator) Open() error {
	it.currentPage = -1
	it.pageIter = nil
	it.isOpen = true
	return it.moveToNextPage()
}

// HasNext returns true if there are more tuples
func (it *HeapFileIterator) HasNext() (bool, error) {
	if !it.isOpen {
		return false, fmt.Errorf("iterator not opened")
	}

	for {
		if it.pageIter == nil {
			return false, nil
		}

		hasNext, err := it.pageIter.HasNext()
		if err != nil {
			return false, err
		}
		if hasNext {
			return true, nil
		}

		if err := it.moveToNextPage(); err != nil {
			return false, err
		}
	}
}

// Next returns the next tuple
func (it *HeapFileIterator) Next() (*tuple.Tuple, error) {
	hasNext, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !hasNext {
		return nil, fmt.Errorf("no more tuples")
	}

	return it.pageIter.Next()
}

// Rewind restarts the iterator from page 0.
func (it *HeapFileIterator) Rewind() error {
	return it.Open()
}

// Close releases iterator resources
func (it *HeapFileIterator) Close() error {
	if it.pageIter != nil {
		it.pageIter.Close()
		it.pageIter = nil
	}
	it.isOpen = false
	return nil
}

// moveToNextPage loads the next page through the pool, or leaves pageIter
// nil when the file is exhausted.
func (it *HeapFileIterator) moveToNextPage() error {
	it.currentPage++
	if it.currentPage >= it.file.NumPages() {
		it.pageIter = nil
		return nil
	}

	pid := NewHeapPageID(it.file.ID(), it.currentPage)
	p, err := it.pool.GetPage(it.tid, pid, page.ReadOnly)
	if err != nil {
		return err
	}

	hp, ok := p.(*HeapPage)
	if !ok {
		return fmt.Errorf("page %s is not a heap page", pid)
	}

	it.pageIter = NewHeapPageIterator(hp)
	return it.pageIter.Open()
}
