package execution

import (
	"fmt"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/database"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// Delete drains its child and deletes every tuple through the buffer pool.
// Like Insert it emits a single count tuple and then end of stream.
type Delete struct {
	base  *BaseIterator
	ctx   *database.Context
	tid   *transaction.TransactionID
	child DbIterator
	desc  *tuple.TupleDescription
	done  bool
}

func NewDelete(ctx *database.Context, tid *transaction.TransactionID, child DbIterator) (*Delete, error) {
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}

	desc, err := tuple.NewTupleDesc([]types.Type{types.IntType}, []string{"count"})
	if err != nil {
		return nil, err
	}

	del := &Delete{
		ctx:   ctx,
		tid:   tid,
		child: child,
		desc:  desc,
	}
	del.base = NewBaseIterator(del.readNext)
	return del, nil
}

func (del *Delete) Open() error {
	if err := del.child.Open(); err != nil {
		return err
	}
	del.done = false
	del.base.MarkOpened()
	return nil
}

func (del *Delete) readNext() (*tuple.Tuple, error) {
	if del.done {
		return nil, nil
	}
	del.done = true

	count := int32(0)
	for {
		hasNext, err := del.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !hasNext {
			break
		}

		t, err := del.child.Next()
		if err != nil {
			return nil, err
		}

		if err := del.ctx.Pool.DeleteTuple(del.tid, t); err != nil {
			return nil, err
		}
		count++
	}

	out := tuple.NewTuple(del.desc)
	if err := out.SetField(0, types.NewIntField(count)); err != nil {
		return nil, err
	}
	return out, nil
}

func (del *Delete) TupleDesc() *tuple.TupleDescription {
	return del.desc
}

func (del *Delete) Rewind() error {
	if err := del.child.Rewind(); err != nil {
		return err
	}
	del.done = false
	del.base.ClearCache()
	return nil
}

func (del *Delete) Close() error {
	if del.child != nil {
		del.child.Close()
	}
	return del.base.Close()
}

func (del *Delete) HasNext() (bool, error)      { return del.base.HasNext() }
func (del *Delete) Next() (*tuple.Tuple, error) { return del.base.Next() }

func (del *Delete) Children() []DbIterator {
	return []DbIterator{del.child}
}

func (del *Delete) SetChildren(children []DbIterator) {
	if len(children) > 0 {
		del.child = children[0]
	}
}
