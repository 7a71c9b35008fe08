package heap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/storage/page"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

var (
	// ErrPageFull is returned by InsertTuple when no empty slot remains.
	ErrPageFull = errors.New("no empty slot on page")

	// ErrSchemaMismatch is returned when a tuple's schema does not match
	// the page's schema.
	ErrSchemaMismatch = errors.New("tuple schema does not match page schema")
)

// HeapPage is a single page of a heap file.
//
// Page layout:
//   - Header: ceil(numSlots/8) bytes of slot bitmap. Bit i set means slot i
//     is occupied; bits are ordered little-endian within each byte.
//   - Slots: numSlots contiguous regions of tupleSize bytes, in slot order.
//     Empty slots are zero-filled.
//   - Trailing zero padding up to PageSize.
//
// numSlots = floor(PageSize*8 / (tupleSize*8 + 1)): each stored tuple costs
// its own bytes plus one header bit.
type HeapPage struct {
	pid       *HeapPageID
	tupleDesc *tuple.TupleDescription
	numSlots  int
	header    []byte
	tuples    []*tuple.Tuple
	dirtier   *transaction.TransactionID
	mu        sync.RWMutex

	// The before-image buffer has a dedicated latch so readers of the
	// snapshot never race a concurrent SetBeforeImage.
	oldData   []byte
	oldDataMu sync.Mutex
}

// NewHeapPage constructs a page from its PageSize-byte on-disk form.
func NewHeapPage(pid *HeapPageID, data []byte, td *tuple.TupleDescription) (*HeapPage, error) {
	if len(data) != page.PageSize {
		return nil, fmt.Errorf("invalid page data size: expected %d, got %d", page.PageSize, len(data))
	}

	hp := &HeapPage{
		pid:       pid,
		tupleDesc: td,
	}
	hp.numSlots = numSlotsPerPage(td)
	hp.header = make([]byte, headerSize(hp.numSlots))
	hp.tuples = make([]*tuple.Tuple, hp.numSlots)

	if err := hp.parsePageData(data); err != nil {
		return nil, err
	}

	hp.oldData = make([]byte, page.PageSize)
	copy(hp.oldData, data)
	return hp, nil
}

// NewEmptyHeapPage constructs an all-zero page, used when extending a file.
func NewEmptyHeapPage(pid *HeapPageID, td *tuple.TupleDescription) (*HeapPage, error) {
	return NewHeapPage(pid, make([]byte, page.PageSize), td)
}

func numSlotsPerPage(td *tuple.TupleDescription) int {
	return (page.PageSize * 8) / (td.Size()*8 + 1)
}

func headerSize(numSlots int) int {
	return (numSlots + 7) / 8
}

func (hp *HeapPage) ID() tuple.PageID {
	return hp.pid
}

func (hp *HeapPage) TupleDesc() *tuple.TupleDescription {
	return hp.tupleDesc
}

// NumSlots returns the total slot count on this page.
func (hp *HeapPage) NumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) parsePageData(data []byte) error {
	copy(hp.header, data[:len(hp.header)])

	tupleSize := hp.tupleDesc.Size()
	for i := 0; i < hp.numSlots; i++ {
		if !hp.slotUsed(i) {
			continue
		}

		offset := len(hp.header) + i*tupleSize
		reader := bytes.NewReader(data[offset : offset+tupleSize])

		t, err := readTuple(reader, hp.tupleDesc)
		if err != nil {
			return fmt.Errorf("failed to read tuple at slot %d: %v", i, err)
		}

		t.RecordID = tuple.NewRecordID(hp.pid, i)
		hp.tuples[i] = t
	}

	return nil
}

// PageData serializes the page into its on-disk byte form. Parsing the result
// yields a page equal to this one.
func (hp *HeapPage) PageData() []byte {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.pageDataLocked()
}

func (hp *HeapPage) pageDataLocked() []byte {
	data := make([]byte, page.PageSize)
	copy(data, hp.header)

	tupleSize := hp.tupleDesc.Size()
	for i, t := range hp.tuples {
		if t == nil {
			continue
		}

		offset := len(hp.header) + i*tupleSize
		buf := bytes.NewBuffer(data[offset:offset])
		for j := 0; j < hp.tupleDesc.NumFields(); j++ {
			field, err := t.Field(j)
			if err != nil || field == nil {
				continue
			}
			_ = field.Serialize(buf)
		}
	}

	return data
}

// InsertTuple places t in the lowest-indexed free slot, sets the header bit,
// and assigns t's RecordID.
func (hp *HeapPage) InsertTuple(t *tuple.Tuple) error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if !t.TupleDesc.Equals(hp.tupleDesc) {
		return ErrSchemaMismatch
	}

	for i := 0; i < hp.numSlots; i++ {
		if hp.slotUsed(i) {
			continue
		}
		hp.setSlot(i, true)
		hp.tuples[i] = t
		t.RecordID = tuple.NewRecordID(hp.pid, i)
		return nil
	}

	return ErrPageFull
}

// DeleteTuple clears t's slot and nulls its RecordID. It fails when the
// RecordID is nil, points at another page, or the stored tuple differs.
func (hp *HeapPage) DeleteTuple(t *tuple.Tuple) error {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	rid := t.RecordID
	if rid == nil {
		return fmt.Errorf("tuple has no record ID")
	}
	if !rid.PageID.Equals(hp.pid) {
		return fmt.Errorf("tuple is not on this page")
	}

	slot := rid.TupleNum
	if slot < 0 || slot >= hp.numSlots || !hp.slotUsed(slot) {
		return fmt.Errorf("tuple slot %d is not in use", slot)
	}
	if stored := hp.tuples[slot]; stored == nil || !stored.Equals(t) {
		return fmt.Errorf("stored tuple at slot %d differs", slot)
	}

	hp.setSlot(slot, false)
	hp.tuples[slot] = nil
	t.RecordID = nil
	return nil
}

// NumEmptySlots returns the count of unoccupied slots on this page.
func (hp *HeapPage) NumEmptySlots() int {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	empty := 0
	for i := 0; i < hp.numSlots; i++ {
		if !hp.slotUsed(i) {
			empty++
		}
	}
	return empty
}

// SlotUsed reports whether slot i holds a tuple.
func (hp *HeapPage) SlotUsed(i int) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.slotUsed(i)
}

func (hp *HeapPage) slotUsed(i int) bool {
	if i < 0 || i >= hp.numSlots {
		return false
	}
	return hp.header[i/8]&(1<<(i%8)) != 0
}

func (hp *HeapPage) setSlot(i int, used bool) {
	if used {
		hp.header[i/8] |= 1 << (i % 8)
	} else {
		hp.header[i/8] &^= 1 << (i % 8)
	}
}

func (hp *HeapPage) MarkDirty(dirty bool, tid *transaction.TransactionID) {
	hp.mu.Lock()
	defer hp.mu.Unlock()

	if dirty {
		hp.dirtier = tid
	} else {
		hp.dirtier = nil
	}
}

func (hp *HeapPage) IsDirty() *transaction.TransactionID {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.dirtier
}

// BeforeImage returns the page as of the last SetBeforeImage (initially the
// page as read from disk).
func (hp *HeapPage) BeforeImage() page.Page {
	hp.oldDataMu.Lock()
	data := make([]byte, len(hp.oldData))
	copy(data, hp.oldData)
	hp.oldDataMu.Unlock()

	before, _ := NewHeapPage(hp.pid, data, hp.tupleDesc)
	return before
}

// SetBeforeImage captures the current page state as the new snapshot.
func (hp *HeapPage) SetBeforeImage() {
	data := hp.PageData()

	hp.oldDataMu.Lock()
	hp.oldData = data
	hp.oldDataMu.Unlock()
}

// Tuples returns the occupied tuples in slot order.
func (hp *HeapPage) Tuples() []*tuple.Tuple {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	out := make([]*tuple.Tuple, 0, hp.numSlots)
	for _, t := range hp.tuples {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Iterator walks the occupied tuples in slot order.
func (hp *HeapPage) Iterator() *HeapPageIterator {
	return NewHeapPageIterator(hp)
}

// Equals compares two pages field by field: identity, header bits, and the
// stored tuples.
func (hp *HeapPage) Equals(other *HeapPage) bool {
	if other == nil {
		return false
	}
	if !hp.pid.Equals(other.pid) || hp.numSlots != other.numSlots {
		return false
	}
	if !bytes.Equal(hp.header, other.header) {
		return false
	}
	for i, t := range hp.tuples {
		ot := other.tuples[i]
		if (t == nil) != (ot == nil) {
			return false
		}
		if t != nil && !t.Equals(ot) {
			return false
		}
	}
	return true
}

func readTuple(reader io.Reader, td *tuple.TupleDescription) (*tuple.Tuple, error) {
	t := tuple.NewTuple(td)

	for j := 0; j < td.NumFields(); j++ {
		fieldType, err := td.TypeAtIndex(j)
		if err != nil {
			return nil, err
		}

		field, err := types.ParseField(reader, fieldType)
		if err != nil {
			return nil, err
		}

		if err := t.SetField(j, field); err != nil {
			return nil, err
		}
	}
	return t, nil
}
