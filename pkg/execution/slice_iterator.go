package execution

import (
	"fmt"

	"heapdb/pkg/tuple"
)

// SliceIterator adapts an in-memory slice of tuples to the DbIterator
// contract. Aggregators and tests use it to expose computed results.
type SliceIterator struct {
	tuples []*tuple.Tuple
	desc   *tuple.TupleDescription
	index  int
	opened bool
}

func NewSliceIterator(tuples []*tuple.Tuple, desc *tuple.TupleDescription) *SliceIterator {
	return &SliceIterator{
		tuples: tuples,
		desc:   desc,
		index:  -1,
	}
}

func (it *SliceIterator) Open() error {
	it.index = -1
	it.opened = true
	return nil
}

func (it *SliceIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, fmt.Errorf("iterator not opened")
	}
	return it.index+1 < len(it.tuples), nil
}

func (it *SliceIterator) Next() (*tuple.Tuple, error) {
	hasNext, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !hasNext {
		return nil, fmt.Errorf("no more tuples")
	}

	it.index++
	return it.tuples[it.index], nil
}

func (it *SliceIterator) Rewind() error {
	if !it.opened {
		return fmt.Errorf("iterator not opened")
	}
	it.index = -1
	return nil
}

func (it *SliceIterator) Close() error {
	it.opened = false
	return nil
}

func (it *SliceIterator) TupleDesc() *tuple.TupleDescription {
	return it.desc
}
