package parallel

import (
	"sync/atomic"

	"heapdb/pkg/execution"
)

// OperatorID names one exchange edge of a distributed plan. The producer and
// consumer halves of an exchange share the same id, and a worker routes
// inbound TupleBags to consumer queues by it.
type OperatorID int64

var operatorCounter int64

// NewOperatorID mints a fresh exchange operator id.
func NewOperatorID() OperatorID {
	return OperatorID(atomic.AddInt64(&operatorCounter, 1))
}

// Message is anything that travels over a session: control strings, query
// plans, and TupleBags.
type Message any

// Session is one directed communication channel to a remote peer. Concrete
// framing and transport are chosen by the implementation; the exchange
// operators only write value objects and close.
type Session interface {
	Write(m Message) error
	Close() error
}

// Dialer opens sessions to remote workers by address.
type Dialer interface {
	Dial(addr string) (Session, error)
}

// ProducerOperator is the worker-facing surface of a producer exchange half:
// during plan localization the worker hands itself to every producer so it
// can dial out.
type ProducerOperator interface {
	execution.DbIterator
	OperatorID() OperatorID
	SetWorker(w *Worker)
}

// ConsumerOperator is the worker-facing surface of a consumer exchange half:
// during plan localization the worker wires each consumer to its inbound
// queue.
type ConsumerOperator interface {
	execution.DbIterator
	OperatorID() OperatorID
	SetBuffer(ch chan *TupleBag)
}
