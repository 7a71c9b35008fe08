package aggregation

import (
	"fmt"
	"sync"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// StringAggregator aggregates a string field. COUNT is the only operation
// that makes sense over strings here; constructing the aggregator with any
// other operation fails immediately.
type StringAggregator struct {
	gbField      int
	gbFieldType  types.Type
	aField       int
	op           AggregateOp
	groupToCount map[string]int32
	groupFields  map[string]types.Field
	groupOrder   []string
	tupleDesc    *tuple.TupleDescription
	mutex        sync.RWMutex
}

// NewStringAggregator creates a COUNT aggregator over a string field. Any op
// other than Count is rejected.
func NewStringAggregator(gbField int, gbFieldType types.Type, aField int, op AggregateOp) (*StringAggregator, error) {
	if op != Count {
		return nil, fmt.Errorf("string aggregator only supports COUNT, got %s", op)
	}

	agg := &StringAggregator{
		gbField:      gbField,
		gbFieldType:  gbFieldType,
		aField:       aField,
		op:           op,
		groupToCount: make(map[string]int32),
		groupFields:  make(map[string]types.Field),
	}

	td, err := agg.createTupleDesc()
	if err != nil {
		return nil, fmt.Errorf("error creating StringAggregator: %v", err)
	}
	agg.tupleDesc = td
	return agg, nil
}

func (sa *StringAggregator) createTupleDesc() (*tuple.TupleDescription, error) {
	if sa.gbField == NoGrouping {
		return tuple.NewTupleDesc(
			[]types.Type{types.IntType},
			[]string{sa.op.String()},
		)
	}
	return tuple.NewTupleDesc(
		[]types.Type{sa.gbFieldType, types.IntType},
		[]string{"group", sa.op.String()},
	)
}

func (sa *StringAggregator) TupleDesc() *tuple.TupleDescription {
	return sa.tupleDesc
}

// Merge counts one tuple into its group.
func (sa *StringAggregator) Merge(tup *tuple.Tuple) error {
	sa.mutex.Lock()
	defer sa.mutex.Unlock()

	groupKey := "NO_GROUPING"
	var groupField types.Field
	if sa.gbField != NoGrouping {
		var err error
		groupField, err = tup.Field(sa.gbField)
		if err != nil {
			return fmt.Errorf("failed to get grouping field: %v", err)
		}
		groupKey = groupField.String()
	}

	aggField, err := tup.Field(sa.aField)
	if err != nil {
		return fmt.Errorf("failed to get aggregate field: %v", err)
	}
	if _, ok := aggField.(*types.StringField); !ok {
		return fmt.Errorf("aggregate field is not a string")
	}

	if _, exists := sa.groupToCount[groupKey]; !exists {
		sa.groupToCount[groupKey] = 0
		sa.groupFields[groupKey] = groupField
		sa.groupOrder = append(sa.groupOrder, groupKey)
	}
	sa.groupToCount[groupKey]++
	return nil
}

// Iterator emits one (group, count) tuple per group, or the single tuple (0)
// when nothing was merged and there is no grouping.
func (sa *StringAggregator) Iterator() execution.DbIterator {
	sa.mutex.RLock()
	defer sa.mutex.RUnlock()

	results := make([]*tuple.Tuple, 0, len(sa.groupOrder))
	for _, groupKey := range sa.groupOrder {
		t := tuple.NewTuple(sa.tupleDesc)
		if sa.gbField == NoGrouping {
			_ = t.SetField(0, types.NewIntField(sa.groupToCount[groupKey]))
		} else {
			_ = t.SetField(0, sa.groupFields[groupKey])
			_ = t.SetField(1, types.NewIntField(sa.groupToCount[groupKey]))
		}
		results = append(results, t)
	}

	if len(results) == 0 && sa.gbField == NoGrouping {
		t := tuple.NewTuple(sa.tupleDesc)
		_ = t.SetField(0, types.NewIntField(0))
		results = append(results, t)
	}

	return execution.NewSliceIterator(results, sa.tupleDesc)
}
