package execution

import (
	"fmt"

	"heapdb/pkg/tuple"
)

// Filter propagates only tuples its predicate accepts.
type Filter struct {
	base      *BaseIterator
	predicate *Predicate
	child     DbIterator
}

func NewFilter(predicate *Predicate, child DbIterator) (*Filter, error) {
	if predicate == nil {
		return nil, fmt.Errorf("predicate cannot be nil")
	}
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}

	f := &Filter{
		predicate: predicate,
		child:     child,
	}
	f.base = NewBaseIterator(f.readNext)
	return f, nil
}

func (f *Filter) Open() error {
	if err := f.child.Open(); err != nil {
		return fmt.Errorf("failed to open child operator: %v", err)
	}
	f.base.MarkOpened()
	return nil
}

func (f *Filter) Close() error {
	if f.child != nil {
		f.child.Close()
	}
	return f.base.Close()
}

// TupleDesc returns the child schema; filtering does not change it.
func (f *Filter) TupleDesc() *tuple.TupleDescription {
	return f.child.TupleDesc()
}

func (f *Filter) HasNext() (bool, error)      { return f.base.HasNext() }
func (f *Filter) Next() (*tuple.Tuple, error) { return f.base.Next() }

func (f *Filter) readNext() (*tuple.Tuple, error) {
	for {
		hasNext, err := f.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !hasNext {
			return nil, nil
		}

		t, err := f.child.Next()
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}

		passes, err := f.predicate.Filter(t)
		if err != nil {
			return nil, fmt.Errorf("predicate evaluation failed: %v", err)
		}
		if passes {
			return t, nil
		}
	}
}

func (f *Filter) Rewind() error {
	if err := f.child.Rewind(); err != nil {
		return err
	}
	f.base.ClearCache()
	return nil
}

func (f *Filter) Children() []DbIterator {
	return []DbIterator{f.child}
}

func (f *Filter) SetChildren(children []DbIterator) {
	if len(children) > 0 {
		f.child = children[0]
	}
}
