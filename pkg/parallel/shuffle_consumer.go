package parallel

import (
	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
)

// ShuffleConsumer is the receiving half of a shuffle exchange. Every source
// worker's ShuffleProducer sends it the bags for this worker's partition;
// fetching blocks on the inbound queue until data or end of stream arrives.
type ShuffleConsumer struct {
	base  *execution.BaseIterator
	state consumerState
	child *ShuffleProducer
	desc  *tuple.TupleDescription
}

// NewShuffleConsumer creates the consumer for an exchange fed by the given
// source workers. The child producer may be nil on workers where only the
// consuming half runs; the schema then comes from desc.
func NewShuffleConsumer(child *ShuffleProducer, opID OperatorID, sources []string, desc *tuple.TupleDescription) *ShuffleConsumer {
	sc := &ShuffleConsumer{
		state: newConsumerState(opID, sources),
		child: child,
		desc:  desc,
	}
	sc.base = execution.NewBaseIterator(sc.state.readNext)
	return sc
}

func (sc *ShuffleConsumer) OperatorID() OperatorID {
	return sc.state.operatorID
}

func (sc *ShuffleConsumer) SetBuffer(ch chan *TupleBag) {
	sc.state.setBuffer(ch)
}

func (sc *ShuffleConsumer) Open() error {
	sc.state.open()
	if sc.child != nil {
		if err := sc.child.Open(); err != nil {
			return err
		}
	}
	sc.base.MarkOpened()
	return nil
}

func (sc *ShuffleConsumer) Close() error {
	sc.state.close()
	if sc.child != nil {
		sc.child.Close()
	}
	return sc.base.Close()
}

// Rewind replays the bags received so far from the start. Once they are
// drained, reading continues from the inbound queue until every source has
// signalled end of stream.
func (sc *ShuffleConsumer) Rewind() error {
	sc.state.rewind()
	sc.base.ClearCache()
	return nil
}

func (sc *ShuffleConsumer) TupleDesc() *tuple.TupleDescription {
	if sc.child != nil {
		return sc.child.TupleDesc()
	}
	return sc.desc
}

func (sc *ShuffleConsumer) HasNext() (bool, error)      { return sc.base.HasNext() }
func (sc *ShuffleConsumer) Next() (*tuple.Tuple, error) { return sc.base.Next() }

func (sc *ShuffleConsumer) Children() []execution.DbIterator {
	if sc.child == nil {
		return nil
	}
	return []execution.DbIterator{sc.child}
}

func (sc *ShuffleConsumer) SetChildren(children []execution.DbIterator) {
	if len(children) > 0 {
		if child, ok := children[0].(*ShuffleProducer); ok {
			sc.child = child
		}
	}
}
