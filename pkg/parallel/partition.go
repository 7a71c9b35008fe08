package parallel

import "heapdb/pkg/tuple"

// PartitionFunction maps a tuple to the index of the worker responsible for
// it. Implementations live outside the core; the shuffle operators only
// depend on this contract.
type PartitionFunction interface {
	// NumPartitions returns how many partitions the function spreads over.
	NumPartitions() int

	// Partition returns the partition index for t, in [0, NumPartitions).
	Partition(t *tuple.Tuple, td *tuple.TupleDescription) (int, error)
}
