package parallel

import (
	"time"

	"heapdb/pkg/tuple"
)

const (
	// TupleBagMaxSize is the batch size at which a buffer flushes
	// unconditionally.
	TupleBagMaxSize = 512

	// TupleBagMinSize is the smallest batch worth flushing early: a buffer
	// holding at least this many tuples flushes once TupleBagMaxMS has
	// elapsed since its last flush.
	TupleBagMinSize = 32

	// TupleBagMaxMS bounds how long a partially filled buffer may sit
	// before being flushed.
	TupleBagMaxMS = 1000 * time.Millisecond
)

// TupleBag is a batch of tuples shipped across an exchange edge. A bag with
// no tuples and Eos set signals end of stream from its source worker.
type TupleBag struct {
	OperatorID OperatorID
	WorkerID   string
	Desc       *tuple.TupleDescription
	Tuples     []*tuple.Tuple
	Eos        bool
}

// NewTupleBag builds a data bag.
func NewTupleBag(opID OperatorID, workerID string, tuples []*tuple.Tuple, desc *tuple.TupleDescription) *TupleBag {
	return &TupleBag{
		OperatorID: opID,
		WorkerID:   workerID,
		Desc:       desc,
		Tuples:     tuples,
	}
}

// NewEosBag builds the zero-tuple end-of-stream marker.
func NewEosBag(opID OperatorID, workerID string) *TupleBag {
	return &TupleBag{
		OperatorID: opID,
		WorkerID:   workerID,
		Eos:        true,
	}
}
