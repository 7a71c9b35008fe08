package parallel

import (
	"fmt"
	"sync"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
)

// CollectProducer is the sending half of a collect exchange: it ships every
// tuple of its child, in batches, to the single CollectConsumer on the
// collector worker. It is the root operator on every non-root worker of a
// distributed plan.
type CollectProducer struct {
	operatorID OperatorID
	worker     *Worker
	child      execution.DbIterator
	collector  string

	wg     sync.WaitGroup
	runErr error
	opened bool
}

// NewCollectProducer creates a collect producer shipping to the collector
// worker's address.
func NewCollectProducer(child execution.DbIterator, opID OperatorID, collector string) *CollectProducer {
	return &CollectProducer{
		operatorID: opID,
		child:      child,
		collector:  collector,
	}
}

func (cp *CollectProducer) OperatorID() OperatorID {
	return cp.operatorID
}

func (cp *CollectProducer) SetWorker(w *Worker) {
	cp.worker = w
}

func (cp *CollectProducer) Collector() string {
	return cp.collector
}

func (cp *CollectProducer) Open() error {
	if cp.worker == nil {
		return fmt.Errorf("collect producer has no worker")
	}

	if err := cp.child.Open(); err != nil {
		return err
	}

	cp.opened = true
	cp.wg.Add(1)
	go cp.run()
	return nil
}

func (cp *CollectProducer) run() {
	defer cp.wg.Done()

	session, err := cp.worker.dialer.Dial(cp.collector)
	if err != nil {
		cp.runErr = fmt.Errorf("failed to dial collector %s: %v", cp.collector, err)
		return
	}

	writer := newExchangeWriter(cp.operatorID, cp.worker.ID, cp.child.TupleDesc(), []Session{session})

	for {
		hasNext, err := cp.child.HasNext()
		if err != nil {
			cp.runErr = err
			break
		}
		if !hasNext {
			break
		}

		t, err := cp.child.Next()
		if err != nil {
			cp.runErr = err
			break
		}

		if err := writer.add(0, t); err != nil {
			cp.runErr = err
			break
		}
	}

	if err := writer.finish(); err != nil && cp.runErr == nil {
		cp.runErr = err
	}
}

// HasNext blocks until the writer goroutine finished shipping.
func (cp *CollectProducer) HasNext() (bool, error) {
	if !cp.opened {
		return false, fmt.Errorf("iterator not opened")
	}
	cp.wg.Wait()
	return false, cp.runErr
}

func (cp *CollectProducer) Next() (*tuple.Tuple, error) {
	if _, err := cp.HasNext(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no more tuples")
}

func (cp *CollectProducer) Rewind() error {
	return fmt.Errorf("collect producer cannot be rewound")
}

func (cp *CollectProducer) Close() error {
	cp.opened = false
	if cp.child != nil {
		return cp.child.Close()
	}
	return nil
}

func (cp *CollectProducer) TupleDesc() *tuple.TupleDescription {
	return cp.child.TupleDesc()
}

func (cp *CollectProducer) Children() []execution.DbIterator {
	return []execution.DbIterator{cp.child}
}

func (cp *CollectProducer) SetChildren(children []execution.DbIterator) {
	if len(children) > 0 {
		cp.child = children[0]
	}
}
