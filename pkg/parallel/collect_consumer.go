package parallel

import (
	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
)

// CollectConsumer is the receiving half of a collect exchange: it
// re-assembles, on the root worker, the streams every non-root worker's
// CollectProducer ships to it.
type CollectConsumer struct {
	base  *execution.BaseIterator
	state consumerState
	child *CollectProducer
	desc  *tuple.TupleDescription
}

// NewCollectConsumer creates the consumer fed by the given source workers.
func NewCollectConsumer(child *CollectProducer, opID OperatorID, sources []string, desc *tuple.TupleDescription) *CollectConsumer {
	cc := &CollectConsumer{
		state: newConsumerState(opID, sources),
		child: child,
		desc:  desc,
	}
	cc.base = execution.NewBaseIterator(cc.state.readNext)
	return cc
}

func (cc *CollectConsumer) OperatorID() OperatorID {
	return cc.state.operatorID
}

func (cc *CollectConsumer) SetBuffer(ch chan *TupleBag) {
	cc.state.setBuffer(ch)
}

func (cc *CollectConsumer) Open() error {
	cc.state.open()
	if cc.child != nil {
		if err := cc.child.Open(); err != nil {
			return err
		}
	}
	cc.base.MarkOpened()
	return nil
}

func (cc *CollectConsumer) Close() error {
	cc.state.close()
	if cc.child != nil {
		cc.child.Close()
	}
	return cc.base.Close()
}

func (cc *CollectConsumer) Rewind() error {
	cc.state.rewind()
	cc.base.ClearCache()
	return nil
}

func (cc *CollectConsumer) TupleDesc() *tuple.TupleDescription {
	if cc.child != nil {
		return cc.child.TupleDesc()
	}
	return cc.desc
}

func (cc *CollectConsumer) HasNext() (bool, error)      { return cc.base.HasNext() }
func (cc *CollectConsumer) Next() (*tuple.Tuple, error) { return cc.base.Next() }

func (cc *CollectConsumer) Children() []execution.DbIterator {
	if cc.child == nil {
		return nil
	}
	return []execution.DbIterator{cc.child}
}

func (cc *CollectConsumer) SetChildren(children []execution.DbIterator) {
	if len(children) > 0 {
		if child, ok := children[0].(*CollectProducer); ok {
			cc.child = child
		}
	}
}
