package parallel

import (
	"fmt"
	"sync"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
)

// ShuffleProducer is the sending half of a shuffle exchange. A dedicated
// writer goroutine drains the child, routes each tuple through the partition
// function, and ships batched TupleBags to the consumer on the worker
// responsible for that partition.
type ShuffleProducer struct {
	operatorID OperatorID
	worker     *Worker
	child      execution.DbIterator
	workers    []string
	pf         PartitionFunction

	wg     sync.WaitGroup
	runErr error
	opened bool
}

// NewShuffleProducer creates a shuffle producer shipping to the given worker
// addresses, one per partition.
func NewShuffleProducer(child execution.DbIterator, opID OperatorID, workers []string, pf PartitionFunction) *ShuffleProducer {
	return &ShuffleProducer{
		operatorID: opID,
		child:      child,
		workers:    workers,
		pf:         pf,
	}
}

func (sp *ShuffleProducer) OperatorID() OperatorID {
	return sp.operatorID
}

func (sp *ShuffleProducer) SetWorker(w *Worker) {
	sp.worker = w
}

// SetPartitionFunction replaces the partition function before Open.
func (sp *ShuffleProducer) SetPartitionFunction(pf PartitionFunction) {
	sp.pf = pf
}

func (sp *ShuffleProducer) Workers() []string {
	return sp.workers
}

// Open opens the child and starts the writer goroutine.
func (sp *ShuffleProducer) Open() error {
	if sp.worker == nil {
		return fmt.Errorf("shuffle producer has no worker")
	}
	if sp.pf == nil {
		return fmt.Errorf("shuffle producer has no partition function")
	}

	if err := sp.child.Open(); err != nil {
		return err
	}

	sp.opened = true
	sp.wg.Add(1)
	go sp.run()
	return nil
}

func (sp *ShuffleProducer) run() {
	defer sp.wg.Done()

	sessions := make([]Session, len(sp.workers))
	for i, addr := range sp.workers {
		s, err := sp.worker.dialer.Dial(addr)
		if err != nil {
			sp.runErr = fmt.Errorf("failed to dial worker %s: %v", addr, err)
			return
		}
		sessions[i] = s
	}

	writer := newExchangeWriter(sp.operatorID, sp.worker.ID, sp.child.TupleDesc(), sessions)

	for {
		hasNext, err := sp.child.HasNext()
		if err != nil {
			sp.runErr = err
			break
		}
		if !hasNext {
			break
		}

		t, err := sp.child.Next()
		if err != nil {
			sp.runErr = err
			break
		}

		partition, err := sp.pf.Partition(t, sp.child.TupleDesc())
		if err != nil {
			sp.runErr = err
			break
		}

		if err := writer.add(partition, t); err != nil {
			sp.runErr = err
			break
		}
	}

	if err := writer.finish(); err != nil && sp.runErr == nil {
		sp.runErr = err
	}
}

// HasNext blocks until the writer goroutine has drained the child and
// flushed every buffer; the producer itself emits nothing.
func (sp *ShuffleProducer) HasNext() (bool, error) {
	if !sp.opened {
		return false, fmt.Errorf("iterator not opened")
	}
	sp.wg.Wait()
	return false, sp.runErr
}

func (sp *ShuffleProducer) Next() (*tuple.Tuple, error) {
	if _, err := sp.HasNext(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no more tuples")
}

func (sp *ShuffleProducer) Rewind() error {
	return fmt.Errorf("shuffle producer cannot be rewound")
}

func (sp *ShuffleProducer) Close() error {
	sp.opened = false
	if sp.child != nil {
		return sp.child.Close()
	}
	return nil
}

func (sp *ShuffleProducer) TupleDesc() *tuple.TupleDescription {
	return sp.child.TupleDesc()
}

func (sp *ShuffleProducer) Children() []execution.DbIterator {
	return []execution.DbIterator{sp.child}
}

func (sp *ShuffleProducer) SetChildren(children []execution.DbIterator) {
	if len(children) > 0 {
		sp.child = children[0]
	}
}
