package execution

import (
	"fmt"

	"heapdb/pkg/concurrency/transaction"
	"heapdb/pkg/database"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// Insert drains its child and inserts every tuple into the target table
// through the buffer pool. It emits exactly one output tuple holding the
// insert count; a second fetch reports end of stream.
type Insert struct {
	base    *BaseIterator
	ctx     *database.Context
	tid     *transaction.TransactionID
	child   DbIterator
	tableID int
	desc    *tuple.TupleDescription
	done    bool
}

func NewInsert(ctx *database.Context, tid *transaction.TransactionID, child DbIterator, tableID int) (*Insert, error) {
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}

	tableDesc, err := ctx.Catalog.TupleDesc(tableID)
	if err != nil {
		return nil, err
	}
	if !tableDesc.Equals(child.TupleDesc()) {
		return nil, fmt.Errorf("child schema does not match table %d", tableID)
	}

	desc, err := tuple.NewTupleDesc([]types.Type{types.IntType}, []string{"count"})
	if err != nil {
		return nil, err
	}

	ins := &Insert{
		ctx:     ctx,
		tid:     tid,
		child:   child,
		tableID: tableID,
		desc:    desc,
	}
	ins.base = NewBaseIterator(ins.readNext)
	return ins, nil
}

func (ins *Insert) Open() error {
	if err := ins.child.Open(); err != nil {
		return err
	}
	ins.done = false
	ins.base.MarkOpened()
	return nil
}

func (ins *Insert) readNext() (*tuple.Tuple, error) {
	if ins.done {
		return nil, nil
	}
	ins.done = true

	count := int32(0)
	for {
		hasNext, err := ins.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !hasNext {
			break
		}

		t, err := ins.child.Next()
		if err != nil {
			return nil, err
		}

		if err := ins.ctx.Pool.InsertTuple(ins.tid, ins.tableID, t); err != nil {
			return nil, err
		}
		count++
	}

	out := tuple.NewTuple(ins.desc)
	if err := out.SetField(0, types.NewIntField(count)); err != nil {
		return nil, err
	}
	return out, nil
}

func (ins *Insert) TupleDesc() *tuple.TupleDescription {
	return ins.desc
}

func (ins *Insert) Rewind() error {
	if err := ins.child.Rewind(); err != nil {
		return err
	}
	ins.done = false
	ins.base.ClearCache()
	return nil
}

func (ins *Insert) Close() error {
	if ins.child != nil {
		ins.child.Close()
	}
	return ins.base.Close()
}

func (ins *Insert) HasNext() (bool, error)      { return ins.base.HasNext() }
func (ins *Insert) Next() (*tuple.Tuple, error) { return ins.base.Next() }

func (ins *Insert) Children() []DbIterator {
	return []DbIterator{ins.child}
}

func (ins *Insert) SetChildren(children []DbIterator) {
	if len(children) > 0 {
		ins.child = children[0]
	}
}
