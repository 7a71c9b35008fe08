package parallel

import (
	"time"

	"heapdb/pkg/tuple"
)

// exchangeWriter owns the per-destination buffers of a producer and applies
// the batching rules shared by shuffle and collect:
//
//   - a buffer flushes as soon as it reaches TupleBagMaxSize tuples;
//   - a buffer holding at least TupleBagMinSize tuples flushes once
//     TupleBagMaxMS has elapsed since its last flush;
//   - on child exhaustion any non-empty buffer flushes, then an empty
//     end-of-stream bag goes out and the session closes after the write.
type exchangeWriter struct {
	operatorID OperatorID
	workerID   string
	desc       *tuple.TupleDescription
	sessions   []Session
	buffers    [][]*tuple.Tuple
	lastFlush  []time.Time
}

func newExchangeWriter(opID OperatorID, workerID string, desc *tuple.TupleDescription, sessions []Session) *exchangeWriter {
	now := time.Now()
	w := &exchangeWriter{
		operatorID: opID,
		workerID:   workerID,
		desc:       desc,
		sessions:   sessions,
		buffers:    make([][]*tuple.Tuple, len(sessions)),
		lastFlush:  make([]time.Time, len(sessions)),
	}
	for i := range w.lastFlush {
		w.lastFlush[i] = now
	}
	return w
}

// add buffers one tuple for a destination and flushes per the batching
// rules.
func (w *exchangeWriter) add(partition int, t *tuple.Tuple) error {
	w.buffers[partition] = append(w.buffers[partition], t)

	count := len(w.buffers[partition])
	if count >= TupleBagMaxSize {
		return w.flush(partition)
	}
	if count >= TupleBagMinSize && time.Since(w.lastFlush[partition]) > TupleBagMaxMS {
		return w.flush(partition)
	}
	return nil
}

func (w *exchangeWriter) flush(partition int) error {
	if len(w.buffers[partition]) == 0 {
		return nil
	}

	bag := NewTupleBag(w.operatorID, w.workerID, w.buffers[partition], w.desc)
	w.buffers[partition] = nil
	w.lastFlush[partition] = time.Now()
	return w.sessions[partition].Write(bag)
}

// finish flushes every leftover buffer, sends end-of-stream markers, and
// closes the sessions once the final write completed.
func (w *exchangeWriter) finish() error {
	var firstErr error
	for i, session := range w.sessions {
		if err := w.flush(i); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := session.Write(NewEosBag(w.operatorID, w.workerID)); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
