package parallel

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"heapdb/pkg/database"
	"heapdb/pkg/execution"
)

// Worker executes its share of a distributed query. The lifecycle per query:
//
//  1. a plan arrives; the worker allocates inbound queues for its consumers,
//     localizes the plan, and acknowledges with its own id;
//  2. on "start" it drives the root operator to exhaustion;
//  3. when the plan finishes it clears the queues and waits for the next one.
//
// A liveness timer periodically dials the coordinator; when the coordinator
// stays unreachable for three retries the worker shuts itself down.
type Worker struct {
	ID         string
	serverAddr string
	ctx        *database.Context
	dialer     Dialer

	mu         sync.Mutex
	inBuffer   map[OperatorID]chan *TupleBag
	queryPlan  execution.DbIterator
	toShutdown atomic.Bool

	logger *log.Entry
}

// inboundQueueSize bounds how many bags a consumer queue holds before
// senders block.
const inboundQueueSize = 1024

// NewWorker creates a worker identified by id, reporting to the coordinator
// at serverAddr, executing against the given database instance.
func NewWorker(id, serverAddr string, ctx *database.Context, dialer Dialer) *Worker {
	return &Worker{
		ID:         id,
		serverAddr: serverAddr,
		ctx:        ctx,
		dialer:     dialer,
		inBuffer:   make(map[OperatorID]chan *TupleBag),
		logger:     log.WithField("worker", id),
	}
}

// Running reports whether the worker currently holds a query plan.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queryPlan != nil
}

// ShutdownRequested reports whether the worker has been told to stop.
func (w *Worker) ShutdownRequested() bool {
	return w.toShutdown.Load()
}

// HandleMessage dispatches one inbound message: control strings from the
// coordinator, a query plan, or exchange data from other workers.
func (w *Worker) HandleMessage(reply Session, msg Message) {
	switch m := msg.(type) {
	case string:
		switch m {
		case "shutdown":
			w.toShutdown.Store(true)
		case "start":
			go w.executeQuery()
		default:
			w.logger.WithField("msg", m).Warn("unknown control message")
		}

	case execution.DbIterator:
		if w.receiveQuery(m) && reply != nil {
			// Acknowledge receipt with this worker's id.
			if err := reply.Write(w.ID); err != nil {
				w.logger.WithField("err", err).Warn("failed to acknowledge plan")
			}
		}

	case *TupleBag:
		w.receiveData(m)

	default:
		w.logger.Warnf("unknown message type %T", msg)
	}
}

// receiveQuery prepares a freshly arrived plan: collects its consumer
// operator ids, allocates the inbound queues, and localizes the plan.
// Returns false when the worker is still busy with a previous plan.
func (w *Worker) receiveQuery(plan execution.DbIterator) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.queryPlan != nil {
		w.logger.Error("worker is still processing, new query refused")
		return false
	}

	w.inBuffer = make(map[OperatorID]chan *TupleBag)
	for _, id := range collectConsumerIDs(plan) {
		w.inBuffer[id] = make(chan *TupleBag, inboundQueueSize)
	}

	w.localizePlan(plan)
	w.queryPlan = plan
	w.logger.Info("query received")
	return true
}

// collectConsumerIDs finds the operator ids of every consumer in the plan,
// so inbound bags can be routed to their queues.
func collectConsumerIDs(root execution.DbIterator) []OperatorID {
	var ids []OperatorID
	if consumer, ok := root.(ConsumerOperator); ok {
		ids = append(ids, consumer.OperatorID())
	}
	if op, ok := root.(execution.Operator); ok {
		for _, child := range op.Children() {
			if child != nil {
				ids = append(ids, collectConsumerIDs(child)...)
			}
		}
	}
	return ids
}

// localizePlan replaces the plan's location-dependent pieces with local
// versions: scans rebind their table ids through the local catalog,
// producers learn which worker they run on, and consumers get their inbound
// queues.
func (w *Worker) localizePlan(root execution.DbIterator) {
	if root == nil {
		return
	}

	if ss, ok := root.(*execution.SeqScan); ok {
		if tableID, err := w.ctx.Catalog.TableID(ss.Alias()); err == nil {
			if err := ss.Reset(tableID, ss.Alias()); err != nil {
				w.logger.WithField("err", err).Error("failed to localize scan")
			}
		}
	}

	if producer, ok := root.(ProducerOperator); ok {
		producer.SetWorker(w)
	}

	if consumer, ok := root.(ConsumerOperator); ok {
		consumer.SetBuffer(w.inBuffer[consumer.OperatorID()])
	}

	if op, ok := root.(execution.Operator); ok {
		for _, child := range op.Children() {
			w.localizePlan(child)
		}
	}
}

// receiveData routes an exchange bag to its consumer's queue.
func (w *Worker) receiveData(bag *TupleBag) {
	w.mu.Lock()
	q, ok := w.inBuffer[bag.OperatorID]
	w.mu.Unlock()

	if !ok {
		w.logger.WithField("operator", bag.OperatorID).Warn("bag for unknown operator")
		return
	}
	q <- bag
}

// executeQuery drives the current plan to exhaustion. The root of a
// distributed plan is a producer, so driving it ships every result tuple to
// its consumer elsewhere.
func (w *Worker) executeQuery() {
	w.mu.Lock()
	plan := w.queryPlan
	w.mu.Unlock()

	if plan == nil {
		w.logger.Error("start received with no plan")
		return
	}

	if err := w.runPlan(plan); err != nil {
		w.logger.WithField("err", err).Error("query execution failed")
	}
	w.finishQuery()
}

func (w *Worker) runPlan(plan execution.DbIterator) error {
	if err := plan.Open(); err != nil {
		return err
	}
	defer plan.Close()

	for {
		hasNext, err := plan.HasNext()
		if err != nil {
			return err
		}
		if !hasNext {
			return nil
		}
		if _, err := plan.Next(); err != nil {
			return err
		}
	}
}

// finishQuery clears the plan and queues, readying the worker for the next
// plan.
func (w *Worker) finishQuery() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.inBuffer = make(map[OperatorID]chan *TupleBag)
	w.queryPlan = nil
	w.logger.Info("query finished")
}

// RunLiveness pings the coordinator until stop closes or a shutdown is
// requested. The period is jittered so a fleet of workers does not dial in
// lock step.
func (w *Worker) RunLiveness(stop <-chan struct{}) {
	for {
		delay := time.Duration(1000+rand.Intn(2000)) * time.Millisecond
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}

		if w.toShutdown.Load() {
			w.logger.Info("shutdown requested, stopping")
			return
		}

		if !w.coordinatorReachable() {
			w.logger.Info("coordinator unreachable, shutting down")
			w.toShutdown.Store(true)
			return
		}
	}
}

// coordinatorReachable tries to dial the coordinator, with three retries.
func (w *Worker) coordinatorReachable() bool {
	for attempt := 0; attempt < 3; attempt++ {
		session, err := w.dialer.Dial(w.serverAddr)
		if err == nil {
			session.Close()
			return true
		}
	}
	return false
}
