package aggregation

import (
	"fmt"
	"math"
	"sync"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// IntegerAggregator aggregates an integer field with MIN, MAX, SUM, AVG or
// COUNT semantics, optionally grouped by another field. AVG keeps a running
// sum and count per group and divides (integer division) when results are
// iterated.
type IntegerAggregator struct {
	groupByField   int
	groupFieldType types.Type
	aggrField      int
	op             AggregateOp
	groupToAgg     map[string]int32
	groupToCount   map[string]int32
	groupFields    map[string]types.Field
	groupOrder     []string
	tupleDesc      *tuple.TupleDescription
	mutex          sync.RWMutex
}

// NewIntegerAggregator creates an integer aggregator. Pass NoGrouping as
// gbField to fold the whole input into a single group.
func NewIntegerAggregator(gbField int, gbFieldType types.Type, aField int, op AggregateOp) (*IntegerAggregator, error) {
	agg := &IntegerAggregator{
		groupByField:   gbField,
		groupFieldType: gbFieldType,
		aggrField:      aField,
		op:             op,
		groupToAgg:     make(map[string]int32),
		groupToCount:   make(map[string]int32),
		groupFields:    make(map[string]types.Field),
	}

	td, err := agg.createTupleDesc()
	if err != nil {
		return nil, fmt.Errorf("error creating IntegerAggregator: %v", err)
	}
	agg.tupleDesc = td
	return agg, nil
}

func (ia *IntegerAggregator) createTupleDesc() (*tuple.TupleDescription, error) {
	if ia.groupByField == NoGrouping {
		return tuple.NewTupleDesc(
			[]types.Type{types.IntType},
			[]string{ia.op.String()},
		)
	}

	return tuple.NewTupleDesc(
		[]types.Type{ia.groupFieldType, types.IntType},
		[]string{"group", ia.op.String()},
	)
}

func (ia *IntegerAggregator) TupleDesc() *tuple.TupleDescription {
	return ia.tupleDesc
}

// Merge folds one tuple into the aggregate state.
func (ia *IntegerAggregator) Merge(tup *tuple.Tuple) error {
	ia.mutex.Lock()
	defer ia.mutex.Unlock()

	groupKey := "NO_GROUPING"
	var groupField types.Field
	if ia.groupByField != NoGrouping {
		var err error
		groupField, err = tup.Field(ia.groupByField)
		if err != nil {
			return fmt.Errorf("failed to get grouping field: %v", err)
		}
		groupKey = groupField.String()
	}

	aggField, err := tup.Field(ia.aggrField)
	if err != nil {
		return fmt.Errorf("failed to get aggregate field: %v", err)
	}

	intField, ok := aggField.(*types.IntField)
	if !ok {
		return fmt.Errorf("aggregate field is not an integer")
	}

	ia.initializeGroupIfNeeded(groupKey, groupField)
	return ia.updateAggregate(groupKey, intField.Value)
}

func (ia *IntegerAggregator) getInitValue() int32 {
	switch ia.op {
	case Min:
		return math.MaxInt32
	case Max:
		return math.MinInt32
	default:
		return 0
	}
}

func (ia *IntegerAggregator) updateAggregate(groupKey string, aggValue int32) error {
	currentAgg := ia.groupToAgg[groupKey]

	switch ia.op {
	case Min:
		if aggValue < currentAgg {
			ia.groupToAgg[groupKey] = aggValue
		}

	case Max:
		if aggValue > currentAgg {
			ia.groupToAgg[groupKey] = aggValue
		}

	case Sum:
		ia.groupToAgg[groupKey] = currentAgg + aggValue

	case Avg:
		ia.groupToAgg[groupKey] = currentAgg + aggValue
		ia.groupToCount[groupKey]++

	case Count:
		ia.groupToAgg[groupKey]++

	default:
		return fmt.Errorf("unsupported operation: %v", ia.op)
	}

	return nil
}

func (ia *IntegerAggregator) initializeGroupIfNeeded(groupKey string, groupField types.Field) {
	if _, exists := ia.groupToAgg[groupKey]; exists {
		return
	}

	ia.groupToAgg[groupKey] = ia.getInitValue()
	ia.groupToCount[groupKey] = 0
	ia.groupFields[groupKey] = groupField
	ia.groupOrder = append(ia.groupOrder, groupKey)
}

// Iterator emits one result tuple per group, in first-seen group order. With
// no groups, no input and a COUNT op it emits the single tuple (0).
func (ia *IntegerAggregator) Iterator() execution.DbIterator {
	ia.mutex.RLock()
	defer ia.mutex.RUnlock()

	results := make([]*tuple.Tuple, 0, len(ia.groupOrder))
	for _, groupKey := range ia.groupOrder {
		value := ia.groupToAgg[groupKey]
		if ia.op == Avg {
			if count := ia.groupToCount[groupKey]; count > 0 {
				value /= count
			}
		}

		t := tuple.NewTuple(ia.tupleDesc)
		if ia.groupByField == NoGrouping {
			_ = t.SetField(0, types.NewIntField(value))
		} else {
			_ = t.SetField(0, ia.groupFields[groupKey])
			_ = t.SetField(1, types.NewIntField(value))
		}
		results = append(results, t)
	}

	if len(results) == 0 && ia.groupByField == NoGrouping && ia.op == Count {
		t := tuple.NewTuple(ia.tupleDesc)
		_ = t.SetField(0, types.NewIntField(0))
		results = append(results, t)
	}

	return execution.NewSliceIterator(results, ia.tupleDesc)
}
