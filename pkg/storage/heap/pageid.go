package heap

import (
	"fmt"

	"heapdb/pkg/tuple"
)

// HeapPageID identifies a page within a heap file.
type HeapPageID struct {
	tableID int
	pageNum int
}

// NewHeapPageID creates a new heap page ID
func NewHeapPageID(tableID, pageNum int) *HeapPageID {
	return &HeapPageID{
		tableID: tableID,
		pageNum: pageNum,
	}
}

func (hpid *HeapPageID) TableID() int {
	return hpid.tableID
}

func (hpid *HeapPageID) PageNo() int {
	return hpid.pageNum
}

func (hpid *HeapPageID) Key() tuple.PageKey {
	return tuple.PageKey{TableID: hpid.tableID, PageNo: hpid.pageNum}
}

func (hpid *HeapPageID) Equals(other tuple.PageID) bool {
	if other == nil {
		return false
	}
	return hpid.tableID == other.TableID() && hpid.pageNum == other.PageNo()
}

func (hpid *HeapPageID) String() string {
	return fmt.Sprintf("HeapPageID(table=%d, page=%d)", hpid.tableID, hpid.pageNum)
}
