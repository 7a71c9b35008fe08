// Package parallel implements the exchange layer of a distributed query: the
// operators that ship tuples between workers.
//
// A distributed plan is an operator tree whose internal exchange edges cross
// worker boundaries. Each edge has a producing half and a consuming half
// sharing one OperatorID. Collect funnels every worker's stream to a single
// consumer on the root worker; Shuffle partitions each tuple through a
// PartitionFunction and ships it to the worker owning its partition.
//
// Producers batch tuples into TupleBags, flushing on size and age, and end
// their stream with an empty bag. Consumers block on a per-operator inbound
// queue and track end-of-stream per source worker.
//
// The Worker executes plans: it receives a plan, acknowledges it, waits for
// "start", localizes the plan against its own catalog and queues, drives the
// root to exhaustion, and resets. Transport is abstracted behind Session and
// Dialer; InProcNetwork is the in-process implementation.
package parallel
