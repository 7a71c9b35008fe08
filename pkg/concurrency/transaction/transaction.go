package transaction

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var transactionCounter int64

// TransactionID identifies a transaction. IDs are monotonically increasing
// within a process.
type TransactionID struct {
	id int64
}

func NewTransactionID() *TransactionID {
	return &TransactionID{
		id: atomic.AddInt64(&transactionCounter, 1),
	}
}

func (tid *TransactionID) ID() int64 {
	return tid.id
}

func (tid *TransactionID) String() string {
	return fmt.Sprintf("TID-%d", tid.id)
}

func (tid *TransactionID) Equals(other *TransactionID) bool {
	if tid == nil || other == nil {
		return tid == other
	}
	return tid.id == other.id
}

// TransactionAbortedError is the single cancellation signal inside a worker.
// The lock pool raises it when the requesting transaction detects a deadlock
// cycle; it unwinds through the operators to the transaction driver, which
// aborts the transaction.
type TransactionAbortedError struct {
	TID    *TransactionID
	Reason string
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("transaction %s aborted: %s", e.TID, e.Reason)
}

// IsAborted reports whether err is, or wraps, a TransactionAbortedError.
func IsAborted(err error) bool {
	var abort *TransactionAbortedError
	return errors.As(err, &abort)
}
