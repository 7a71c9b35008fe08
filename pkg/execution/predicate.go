package execution

import (
	"fmt"

	"heapdb/pkg/tuple"
	"heapdb/pkg/types"
)

// Predicate compares one tuple field against a constant operand.
type Predicate struct {
	fieldIndex int
	op         types.Predicate
	operand    types.Field
}

// NewPredicate creates a predicate testing `t[fieldIndex] op operand`.
func NewPredicate(fieldIndex int, op types.Predicate, operand types.Field) *Predicate {
	return &Predicate{
		fieldIndex: fieldIndex,
		op:         op,
		operand:    operand,
	}
}

// Filter evaluates the predicate against a tuple.
func (p *Predicate) Filter(t *tuple.Tuple) (bool, error) {
	field, err := t.Field(p.fieldIndex)
	if err != nil {
		return false, err
	}
	if field == nil {
		return false, nil
	}
	return field.Compare(p.op, p.operand)
}

func (p *Predicate) String() string {
	return fmt.Sprintf("field[%d] %s %s", p.fieldIndex, p.op, p.operand)
}
