package tuple

import (
	"fmt"
	"strings"

	"heapdb/pkg/types"
)

// TupleDescription describes the schema of a tuple: the ordered field types
// plus optional field names. Names are advisory; equality considers the type
// sequence only.
type TupleDescription struct {
	Types      []types.Type
	FieldNames []string
}

// NewTupleDesc creates a new TupleDescription given field types and optional
// field names. If fieldNames is nil, fields have no names.
func NewTupleDesc(fieldTypes []types.Type, fieldNames []string) (*TupleDescription, error) {
	if len(fieldTypes) < 1 {
		return nil, fmt.Errorf("must provide at least one field type")
	}

	typesCopy := make([]types.Type, len(fieldTypes))
	copy(typesCopy, fieldTypes)

	var namesCopy []string
	if fieldNames != nil {
		if len(fieldNames) != len(fieldTypes) {
			return nil, fmt.Errorf("field names length (%d) must match field types length (%d)",
				len(fieldNames), len(fieldTypes))
		}
		namesCopy = make([]string, len(fieldNames))
		copy(namesCopy, fieldNames)
	}

	return &TupleDescription{
		Types:      typesCopy,
		FieldNames: namesCopy,
	}, nil
}

// NumFields returns the number of fields in this tuple descriptor.
func (td *TupleDescription) NumFields() int {
	return len(td.Types)
}

// FieldName returns the name of the ith field, or "" if no names were given.
func (td *TupleDescription) FieldName(i int) (string, error) {
	if i < 0 || i >= len(td.Types) {
		return "", fmt.Errorf("field index %d out of bounds [0, %d)", i, len(td.Types))
	}

	if td.FieldNames == nil {
		return "", nil
	}

	return td.FieldNames[i], nil
}

// TypeAtIndex returns the type of the ith field.
func (td *TupleDescription) TypeAtIndex(i int) (types.Type, error) {
	if i < 0 || i >= len(td.Types) {
		return 0, fmt.Errorf("field index %d out of bounds [0, %d)", i, len(td.Types))
	}
	return td.Types[i], nil
}

// Size returns the number of bytes a serialized tuple of this schema occupies:
// the sum of all field widths.
func (td *TupleDescription) Size() int {
	size := 0
	for _, fieldType := range td.Types {
		size += fieldType.Size()
	}
	return size
}

// Equals checks if two TupleDescriptions are equal. Two descriptors are equal
// if they have the same field types in the same order. Names are not compared.
func (td *TupleDescription) Equals(other *TupleDescription) bool {
	if other == nil {
		return false
	}

	if len(td.Types) != len(other.Types) {
		return false
	}

	for i, fieldType := range td.Types {
		if fieldType != other.Types[i] {
			return false
		}
	}
	return true
}

// FindFieldIndex locates a field by name, case-sensitively.
func (td *TupleDescription) FindFieldIndex(fieldName string) (int, error) {
	for i := 0; i < td.NumFields(); i++ {
		name, _ := td.FieldName(i)
		if name == fieldName {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %s not found", fieldName)
}

// String returns "Type1(name1),Type2(name2),..."; unnamed fields show "null".
func (td *TupleDescription) String() string {
	var parts []string

	for i, fieldType := range td.Types {
		fieldName := "null"
		if td.FieldNames != nil && i < len(td.FieldNames) && td.FieldNames[i] != "" {
			fieldName = td.FieldNames[i]
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", fieldType.String(), fieldName))
	}

	return strings.Join(parts, ",")
}

// Combine merges two TupleDescriptions: all fields of td1 followed by all
// fields of td2. If either is nil, the other is returned.
func Combine(td1, td2 *TupleDescription) *TupleDescription {
	if td1 == nil && td2 == nil {
		return nil
	}
	if td1 == nil {
		return td2
	}
	if td2 == nil {
		return td1
	}

	newTypes := make([]types.Type, 0, len(td1.Types)+len(td2.Types))
	newTypes = append(newTypes, td1.Types...)
	newTypes = append(newTypes, td2.Types...)

	var newNames []string
	if td1.FieldNames != nil || td2.FieldNames != nil {
		newNames = make([]string, 0, len(newTypes))
		newNames = append(newNames, namesOrBlanks(td1)...)
		newNames = append(newNames, namesOrBlanks(td2)...)
	}

	combined, _ := NewTupleDesc(newTypes, newNames)
	return combined
}

func namesOrBlanks(td *TupleDescription) []string {
	if td.FieldNames != nil {
		return td.FieldNames
	}
	return make([]string, len(td.Types))
}
