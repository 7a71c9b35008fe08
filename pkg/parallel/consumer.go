package parallel

import (
	"fmt"

	"heapdb/pkg/tuple"
)

// consumerState is the receiving machinery shared by ShuffleConsumer and
// CollectConsumer: a FIFO of received TupleBags, a cursor into the bag being
// drained, and the set of source workers that have signalled end of stream.
type consumerState struct {
	operatorID OperatorID
	sources    []string
	buffer     chan *TupleBag

	eosSeen   map[string]bool
	inner     []*TupleBag
	innerIdx  int
	current   []*tuple.Tuple
	currentAt int
	opened    bool
}

func newConsumerState(opID OperatorID, sources []string) consumerState {
	return consumerState{
		operatorID: opID,
		sources:    sources,
	}
}

func (cs *consumerState) setBuffer(ch chan *TupleBag) {
	cs.buffer = ch
}

func (cs *consumerState) open() {
	cs.eosSeen = make(map[string]bool)
	cs.inner = nil
	cs.innerIdx = 0
	cs.current = nil
	cs.currentAt = 0
	cs.opened = true
}

func (cs *consumerState) close() {
	cs.opened = false
	cs.inner = nil
	cs.current = nil
	cs.eosSeen = nil
}

// rewind re-reads the bags received so far from the start.
func (cs *consumerState) rewind() {
	cs.innerIdx = 0
	cs.current = nil
	cs.currentAt = 0
}

func (cs *consumerState) allSourcesDone() bool {
	for _, src := range cs.sources {
		if !cs.eosSeen[src] {
			return false
		}
	}
	return true
}

// nextBag returns the next batch to drain: first any bag already received
// and not yet replayed, then bags pulled off the inbound queue, blocking
// while the queue is empty. It returns nil once every source worker's
// end-of-stream bit is set and the queue holds nothing more.
func (cs *consumerState) nextBag() (*TupleBag, error) {
	if cs.innerIdx < len(cs.inner) {
		bag := cs.inner[cs.innerIdx]
		cs.innerIdx++
		return bag, nil
	}

	for !cs.allSourcesDone() {
		if cs.buffer == nil {
			return nil, fmt.Errorf("consumer has no inbound queue")
		}

		bag := <-cs.buffer
		if bag == nil {
			return nil, fmt.Errorf("inbound queue closed")
		}

		if bag.Eos {
			cs.eosSeen[bag.WorkerID] = true
			continue
		}

		cs.inner = append(cs.inner, bag)
		cs.innerIdx++
		return bag, nil
	}

	return nil, nil
}

// readNext yields the next tuple, pulling a new bag whenever the current one
// is drained. A nil result is end of stream.
func (cs *consumerState) readNext() (*tuple.Tuple, error) {
	for cs.current == nil || cs.currentAt >= len(cs.current) {
		bag, err := cs.nextBag()
		if err != nil {
			return nil, err
		}
		if bag == nil {
			return nil, nil
		}
		cs.current = bag.Tuples
		cs.currentAt = 0
	}

	t := cs.current[cs.currentAt]
	cs.currentAt++
	return t, nil
}
