package page

import (
	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/tuple"
)

const (
	// PageSize is the number of bytes in a page, including the header.
	PageSize = 4096

	// DefaultPages is the default buffer pool capacity in pages.
	DefaultPages = 50
)

// Permissions represents the access intent for a page request.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}

// Page is the unit of caching in the buffer pool.
type Page interface {
	// ID returns the canonical identifier of this page.
	ID() tuple.PageID

	// PageData serializes the page into its PageSize-byte on-disk form.
	PageData() []byte

	// MarkDirty flags the page as modified by tid, or clean when dirty is
	// false.
	MarkDirty(dirty bool, tid *transaction.TransactionID)

	// IsDirty returns the transaction that dirtied the page, or nil if the
	// page is clean.
	IsDirty() *transaction.TransactionID

	// BeforeImage returns a snapshot of the page as of the last
	// SetBeforeImage (initially: as read from disk).
	BeforeImage() Page

	// SetBeforeImage captures the current page state as the new snapshot.
	SetBeforeImage()
}

// TupleIterator walks tuples one at a time.
type TupleIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*tuple.Tuple, error)
	Rewind() error
	Close() error
}

// Pool is the page-access surface a file uses to fetch pages on behalf of a
// transaction. The buffer pool implements it.
type Pool interface {
	GetPage(tid *transaction.TransactionID, pid tuple.PageID, perm Permissions) (Page, error)
	ReleasePage(tid *transaction.TransactionID, pid tuple.PageID)
}

// DbFile is a table file: a sequence of pages plus tuple-level mutation.
type DbFile interface {
	// ID returns the table id this file backs.
	ID() int

	TupleDesc() *tuple.TupleDescription

	// ReadPage reads a page directly from disk, bypassing the pool.
	ReadPage(pid tuple.PageID) (Page, error)

	// WritePage writes a page to its slot in the file.
	WritePage(p Page) error

	NumPages() int

	// InsertTuple adds t to the first page with room, appending a new page
	// if none has space. Returns the pages it dirtied.
	InsertTuple(tid *transaction.TransactionID, t *tuple.Tuple, pool Pool) ([]Page, error)

	// DeleteTuple removes t from the page named by its RecordID.
	DeleteTuple(tid *transaction.TransactionID, t *tuple.Tuple, pool Pool) (Page, error)

	// Iterator walks every tuple in every page, loading pages through the
	// pool with read intent.
	Iterator(tid *transaction.TransactionID, pool Pool) TupleIterator
}
