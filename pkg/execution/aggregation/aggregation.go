package aggregation

import (
	"fmt"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
)

// NoGrouping marks an aggregator that folds its whole input into one group.
const NoGrouping = -1

// AggregateOp is the aggregate function applied over a group.
type AggregateOp int

const (
	Min AggregateOp = iota
	Max
	Sum
	Avg
	Count
)

func (op AggregateOp) String() string {
	switch op {
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Count:
		return "COUNT"
	default:
		return "UNKNOWN"
	}
}

// ParseAggregateOp converts an operation name to its AggregateOp.
func ParseAggregateOp(s string) (AggregateOp, error) {
	switch s {
	case "MIN", "min":
		return Min, nil
	case "MAX", "max":
		return Max, nil
	case "SUM", "sum":
		return Sum, nil
	case "AVG", "avg":
		return Avg, nil
	case "COUNT", "count":
		return Count, nil
	default:
		return 0, fmt.Errorf("unknown aggregate operation %q", s)
	}
}

// Aggregator folds a stream of tuples into per-group aggregate values.
type Aggregator interface {
	// Merge processes one tuple into the running aggregate state.
	Merge(tup *tuple.Tuple) error

	// Iterator returns the results: one tuple per group, either
	// (aggregateValue) or (groupValue, aggregateValue).
	Iterator() execution.DbIterator

	// TupleDesc returns the schema of the result tuples.
	TupleDesc() *tuple.TupleDescription
}
