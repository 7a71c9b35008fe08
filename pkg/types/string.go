package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"strings"
)

// StringField represents a fixed-width string field. The serialized form is
// a 4-byte big-endian length followed by the payload, zero-padded to
// StringMaxSize bytes.
type StringField struct {
	Value string
}

// NewStringField creates a new StringField. Values longer than StringMaxSize
// are truncated to fit the fixed width.
func NewStringField(value string) *StringField {
	if len(value) > StringMaxSize {
		value = value[:StringMaxSize]
	}
	return &StringField{Value: value}
}

// Compare evaluates the predicate against another string field. Ordering is
// lexicographic; Like is a substring match.
func (s *StringField) Compare(op Predicate, other Field) (bool, error) {
	otherString, ok := other.(*StringField)
	if !ok {
		return false, fmt.Errorf("cannot compare string field with %v", other.Type())
	}

	cmp := strings.Compare(s.Value, otherString.Value)

	switch op {
	case Equals:
		return cmp == 0, nil

	case LessThan:
		return cmp < 0, nil

	case GreaterThan:
		return cmp > 0, nil

	case LessThanOrEqual:
		return cmp <= 0, nil

	case GreaterThanOrEqual:
		return cmp >= 0, nil

	case NotEqual:
		return cmp != 0, nil

	case Like:
		return strings.Contains(s.Value, otherString.Value), nil

	default:
		return false, fmt.Errorf("unsupported predicate %s for string field", op)
	}
}

func (s *StringField) Serialize(w io.Writer) error {
	length := min(len(s.Value), StringMaxSize)

	lengthBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBytes, uint32(length))

	if _, err := w.Write(lengthBytes); err != nil {
		return err
	}

	if _, err := w.Write([]byte(s.Value[:length])); err != nil {
		return err
	}

	padding := make([]byte, StringMaxSize-length)
	_, err := w.Write(padding)
	return err
}

func (s *StringField) Type() Type {
	return StringType
}

func (s *StringField) String() string {
	return s.Value
}

func (s *StringField) Equals(other Field) bool {
	otherString, ok := other.(*StringField)
	if !ok {
		return false
	}
	return s.Value == otherString.Value
}

// Hash covers only the value bytes, never the padding.
func (s *StringField) Hash() (uint32, error) {
	h := fnv.New32a()
	h.Write([]byte(s.Value))
	return h.Sum32(), nil
}

// ParseStringField reads the length prefix and fixed-width payload from the
// stream.
func ParseStringField(r io.Reader) (*StringField, error) {
	lengthBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint32(lengthBytes))
	if length > StringMaxSize {
		return nil, fmt.Errorf("string field length %d exceeds maximum %d", length, StringMaxSize)
	}

	payload := make([]byte, StringMaxSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &StringField{Value: string(payload[:length])}, nil
}

// ParseField reads one field of the given type from the stream.
func ParseField(r io.Reader, t Type) (Field, error) {
	switch t {
	case IntType:
		return ParseIntField(r)
	case StringType:
		return ParseStringField(r)
	default:
		return nil, fmt.Errorf("unknown field type %v", t)
	}
}
