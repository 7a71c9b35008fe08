package aggregation

import (
	"fmt"

	"heapdb/pkg/execution"
	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// Aggregate wraps an aggregator as an operator: the child is drained on the
// first fetch, then the aggregator's results are re-emitted. The aggregate
// output column is named op(childFieldName).
type Aggregate struct {
	base       *execution.BaseIterator
	child      execution.DbIterator
	aggregator Aggregator
	results    execution.DbIterator
	afield     int
	gfield     int
	op         AggregateOp
	tupleDesc  *tuple.TupleDescription
}

// NewAggregate creates an aggregate over child, aggregating afield with op
// and grouping by gfield (NoGrouping for a single group). The aggregator
// variant is chosen by the aggregate field's type.
func NewAggregate(child execution.DbIterator, afield, gfield int, op AggregateOp) (*Aggregate, error) {
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}

	childDesc := child.TupleDesc()
	aType, err := childDesc.TypeAtIndex(afield)
	if err != nil {
		return nil, err
	}

	gType := types.IntType
	if gfield != NoGrouping {
		gType, err = childDesc.TypeAtIndex(gfield)
		if err != nil {
			return nil, err
		}
	}

	var aggregator Aggregator
	switch aType {
	case types.IntType:
		aggregator, err = NewIntegerAggregator(gfield, gType, afield, op)
	case types.StringType:
		aggregator, err = NewStringAggregator(gfield, gType, afield, op)
	default:
		err = fmt.Errorf("unsupported aggregate field type %v", aType)
	}
	if err != nil {
		return nil, err
	}

	agg := &Aggregate{
		child:      child,
		aggregator: aggregator,
		afield:     afield,
		gfield:     gfield,
		op:         op,
	}
	agg.tupleDesc, err = agg.createTupleDesc()
	if err != nil {
		return nil, err
	}

	agg.base = execution.NewBaseIterator(agg.readNext)
	return agg, nil
}

// createTupleDesc names the aggregate column op(childFieldName).
func (agg *Aggregate) createTupleDesc() (*tuple.TupleDescription, error) {
	childDesc := agg.child.TupleDesc()

	aName, _ := childDesc.FieldName(agg.afield)
	aggName := fmt.Sprintf("%s(%s)", agg.op, aName)

	base := agg.aggregator.TupleDesc()
	if agg.gfield == NoGrouping {
		return tuple.NewTupleDesc(base.Types, []string{aggName})
	}

	gName, _ := childDesc.FieldName(agg.gfield)
	return tuple.NewTupleDesc(base.Types, []string{gName, aggName})
}

func (agg *Aggregate) Open() error {
	if err := agg.child.Open(); err != nil {
		return err
	}
	agg.base.MarkOpened()
	return nil
}

// readNext drains the child on the first call, then streams the
// aggregator's result iterator.
func (agg *Aggregate) readNext() (*tuple.Tuple, error) {
	if agg.results == nil {
		for {
			hasNext, err := agg.child.HasNext()
			if err != nil {
				return nil, err
			}
			if !hasNext {
				break
			}

			t, err := agg.child.Next()
			if err != nil {
				return nil, err
			}
			if err := agg.aggregator.Merge(t); err != nil {
				return nil, err
			}
		}

		agg.results = agg.aggregator.Iterator()
		if err := agg.results.Open(); err != nil {
			return nil, err
		}
	}

	hasNext, err := agg.results.HasNext()
	if err != nil {
		return nil, err
	}
	if !hasNext {
		return nil, nil
	}
	return agg.results.Next()
}

func (agg *Aggregate) TupleDesc() *tuple.TupleDescription {
	return agg.tupleDesc
}

func (agg *Aggregate) Rewind() error {
	if agg.results != nil {
		if err := agg.results.Rewind(); err != nil {
			return err
		}
	}
	agg.base.ClearCache()
	return nil
}

func (agg *Aggregate) Close() error {
	if agg.results != nil {
		agg.results.Close()
		agg.results = nil
	}
	if agg.child != nil {
		agg.child.Close()
	}
	return agg.base.Close()
}

func (agg *Aggregate) HasNext() (bool, error)      { return agg.base.HasNext() }
func (agg *Aggregate) Next() (*tuple.Tuple, error) { return agg.base.Next() }

func (agg *Aggregate) Children() []execution.DbIterator {
	return []execution.DbIterator{agg.child}
}

func (agg *Aggregate) SetChildren(children []execution.DbIterator) {
	if len(children) > 0 {
		agg.child = children[0]
	}
}
