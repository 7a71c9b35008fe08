package tuple

import (
	"fmt"
	"hash/fnv"
	"strings"

	"heapdb/pkg/types"
)

// Tuple represents a row of data: field values under a TupleDescription plus
// an optional RecordID naming where the row is stored.
type Tuple struct {
	TupleDesc *TupleDescription
	fields    []types.Field
	RecordID  *RecordID
}

// NewTuple creates a new tuple with the given schema
func NewTuple(td *TupleDescription) *Tuple {
	return &Tuple{
		TupleDesc: td,
		fields:    make([]types.Field, td.NumFields()),
	}
}

func (t *Tuple) SetField(i int, field types.Field) error {
	if i < 0 || i >= len(t.fields) {
		return fmt.Errorf("field index %d out of bounds [0, %d)", i, len(t.fields))
	}

	expectedType, _ := t.TupleDesc.TypeAtIndex(i)
	if field.Type() != expectedType {
		return fmt.Errorf("field type mismatch: expected %v, got %v",
			expectedType, field.Type())
	}

	t.fields[i] = field
	return nil
}

// Field returns the value of the ith field
func (t *Tuple) Field(i int) (types.Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, fmt.Errorf("field index %d out of bounds [0, %d)", i, len(t.fields))
	}
	return t.fields[i], nil
}

// Equals reports whether two tuples have equal schemas and equal fields.
// RecordIDs do not participate in equality.
func (t *Tuple) Equals(other *Tuple) bool {
	if other == nil {
		return false
	}
	if !t.TupleDesc.Equals(other.TupleDesc) {
		return false
	}
	for i, field := range t.fields {
		if field == nil || other.fields[i] == nil {
			if field != other.fields[i] {
				return false
			}
			continue
		}
		if !field.Equals(other.fields[i]) {
			return false
		}
	}
	return true
}

// String returns the tab-separated form of this tuple.
func (t *Tuple) String() string {
	parts := make([]string, 0, len(t.fields))
	for _, field := range t.fields {
		if field != nil {
			parts = append(parts, field.String())
		} else {
			parts = append(parts, "null")
		}
	}
	return strings.Join(parts, "\t")
}

// Hash derives the tuple hash from the tab-separated string form, so equal
// tuples hash equally.
func (t *Tuple) Hash() uint32 {
	h := fnv.New32a()
	h.Write([]byte(t.String()))
	return h.Sum32()
}

// CombineTuples concatenates two tuples into one, used by joins.
func CombineTuples(t1, t2 *Tuple) (*Tuple, error) {
	if t1 == nil || t2 == nil {
		return nil, fmt.Errorf("cannot combine nil tuples")
	}

	newDesc := Combine(t1.TupleDesc, t2.TupleDesc)
	newTuple := NewTuple(newDesc)

	if err := t1.copyFieldsTo(newTuple, 0); err != nil {
		return nil, err
	}
	if err := t2.copyFieldsTo(newTuple, t1.TupleDesc.NumFields()); err != nil {
		return nil, err
	}

	return newTuple, nil
}

func (t *Tuple) copyFieldsTo(target *Tuple, startIndex int) error {
	for i := 0; i < t.TupleDesc.NumFields(); i++ {
		field, err := t.Field(i)
		if err != nil {
			return err
		}
		if field != nil {
			if err := target.SetField(startIndex+i, field); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone creates a copy of this tuple with the same field values and no
// RecordID.
func (t *Tuple) Clone() (*Tuple, error) {
	newTup := NewTuple(t.TupleDesc)
	if err := t.copyFieldsTo(newTup, 0); err != nil {
		return nil, err
	}
	return newTup, nil
}
