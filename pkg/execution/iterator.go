package execution

import (
	"fmt"

	"heapdb/pkg/tuple"
)

// DbIterator is the pull-iterator contract every operator implements.
// Iteration is single-threaded: one caller drives HasNext/Next.
type DbIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*tuple.Tuple, error)
	Rewind() error
	Close() error
	TupleDesc() *tuple.TupleDescription
}

// Operator is an iterator whose children can be inspected and rebound.
// Children are owned by value slices; there are no back-pointers from
// children to parents.
type Operator interface {
	DbIterator
	Children() []DbIterator
	SetChildren(children []DbIterator)
}

// ReadNextFunc reads the next tuple from the underlying source, returning
// nil at end of stream.
type ReadNextFunc func() (*tuple.Tuple, error)

// BaseIterator implements the caching and open-state logic shared by all
// operators: HasNext peeks by caching one tuple ahead, Next consumes the
// cached tuple.
type BaseIterator struct {
	nextTuple    *tuple.Tuple
	opened       bool
	readNextFunc ReadNextFunc
}

// NewBaseIterator creates a base iterator over the given readNext function.
func NewBaseIterator(readNextFunc ReadNextFunc) *BaseIterator {
	return &BaseIterator{
		readNextFunc: readNextFunc,
	}
}

// HasNext reports whether a next tuple is available without consuming it.
// Once it has returned false it keeps returning false until a rewind.
func (it *BaseIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, fmt.Errorf("iterator not opened")
	}

	if it.nextTuple == nil {
		var err error
		it.nextTuple, err = it.readNextFunc()
		if err != nil {
			return false, err
		}
	}
	return it.nextTuple != nil, nil
}

// Next returns the next tuple and advances. Calling Next past end of stream
// is an error.
func (it *BaseIterator) Next() (*tuple.Tuple, error) {
	if !it.opened {
		return nil, fmt.Errorf("iterator not opened")
	}

	if it.nextTuple == nil {
		var err error
		it.nextTuple, err = it.readNextFunc()
		if err != nil {
			return nil, err
		}
		if it.nextTuple == nil {
			return nil, fmt.Errorf("no more tuples")
		}
	}

	result := it.nextTuple
	it.nextTuple = nil
	return result, nil
}

// Close clears the cached tuple and marks the iterator closed.
func (it *BaseIterator) Close() error {
	it.nextTuple = nil
	it.opened = false
	return nil
}

// MarkOpened marks the iterator as opened and ready for use.
func (it *BaseIterator) MarkOpened() {
	it.opened = true
	it.nextTuple = nil
}

// ClearCache drops the lookahead tuple, used by Rewind implementations.
func (it *BaseIterator) ClearCache() {
	it.nextTuple = nil
}
