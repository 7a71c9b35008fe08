package join

import (
	"fmt"

	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// JoinPredicate compares a field of a left tuple with a field of a right
// tuple under a comparison operator.
type JoinPredicate struct {
	field1 int
	field2 int
	op     types.Predicate
}

// NewJoinPredicate creates the predicate `t1[field1] op t2[field2]`. Like is
// not a join operator and is rejected here.
func NewJoinPredicate(field1 int, op types.Predicate, field2 int) (*JoinPredicate, error) {
	if field1 < 0 {
		return nil, fmt.Errorf("field1 index cannot be negative: %d", field1)
	}
	if field2 < 0 {
		return nil, fmt.Errorf("field2 index cannot be negative: %d", field2)
	}
	if op == types.Like {
		return nil, fmt.Errorf("LIKE is not supported as a join operator")
	}

	return &JoinPredicate{
		field1: field1,
		field2: field2,
		op:     op,
	}, nil
}

// Filter evaluates the predicate against a pair of tuples.
func (jp *JoinPredicate) Filter(t1, t2 *tuple.Tuple) (bool, error) {
	if t1 == nil || t2 == nil {
		return false, fmt.Errorf("tuples cannot be nil")
	}

	f1, err := t1.Field(jp.field1)
	if err != nil {
		return false, err
	}
	f2, err := t2.Field(jp.field2)
	if err != nil {
		return false, err
	}
	if f1 == nil || f2 == nil {
		return false, nil
	}

	return f1.Compare(jp.op, f2)
}

func (jp *JoinPredicate) Field1() int         { return jp.field1 }
func (jp *JoinPredicate) Field2() int         { return jp.field2 }
func (jp *JoinPredicate) Op() types.Predicate { return jp.op }

func (jp *JoinPredicate) String() string {
	return fmt.Sprintf("left[%d] %s right[%d]", jp.field1, jp.op, jp.field2)
}
