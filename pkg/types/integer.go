package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
)

// IntField represents a 32-bit signed integer field.
type IntField struct {
	Value int32
}

func NewIntField(value int32) *IntField {
	return &IntField{Value: value}
}

// Serialize writes the value as 4 bytes, big-endian two's complement.
func (f *IntField) Serialize(w io.Writer) error {
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, uint32(f.Value))
	_, err := w.Write(bytes)
	return err
}

func (f *IntField) Compare(op Predicate, other Field) (bool, error) {
	otherInt, ok := other.(*IntField)
	if !ok {
		return false, fmt.Errorf("cannot compare int field with %v", other.Type())
	}

	a, b := f.Value, otherInt.Value
	switch op {
	case Equals:
		return a == b, nil
	case LessThan:
		return a < b, nil
	case GreaterThan:
		return a > b, nil
	case LessThanOrEqual:
		return a <= b, nil
	case GreaterThanOrEqual:
		return a >= b, nil
	case NotEqual:
		return a != b, nil
	default:
		return false, fmt.Errorf("unsupported predicate %s for int field", op)
	}
}

func (f *IntField) Type() Type {
	return IntType
}

func (f *IntField) String() string {
	return strconv.FormatInt(int64(f.Value), 10)
}

func (f *IntField) Equals(other Field) bool {
	otherInt, ok := other.(*IntField)
	if !ok {
		return false
	}
	return f.Value == otherInt.Value
}

func (f *IntField) Hash() (uint32, error) {
	h := fnv.New32a()
	bytes := make([]byte, 4)
	binary.BigEndian.PutUint32(bytes, uint32(f.Value))
	_, _ = h.Write(bytes)
	return h.Sum32(), nil
}

// ParseIntField reads a 4-byte big-endian integer from the stream.
func ParseIntField(r io.Reader) (*IntField, error) {
	bytes := make([]byte, 4)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return nil, err
	}
	return NewIntField(int32(binary.BigEndian.Uint32(bytes))), nil
}
