package query

import (
	"fmt"
	"strings"

	"github.com/roach88/storehaus/internal/schema"
)

// UpdateKind is the kind of an UpdateOp.
type UpdateKind string

const (
	KindSet       UpdateKind = "set"
	KindIncrement UpdateKind = "increment"
	KindDecrement UpdateKind = "decrement"
	KindMultiply  UpdateKind = "multiply"
	KindDivide    UpdateKind = "divide"
)

// UpdateOp is one column mutation of an atomic bulk update. Everything
// except Set is relative to the current column value.
type UpdateOp struct {
	Field string
	Kind  UpdateKind
	Value any
}

// Assignment renders the SET assignment with the given placeholder.
func (op UpdateOp) Assignment(placeholder string) (string, error) {
	switch op.Kind {
	case KindSet:
		return fmt.Sprintf("%s = %s", op.Field, placeholder), nil
	case KindIncrement:
		return fmt.Sprintf("%s = %s + %s", op.Field, op.Field, placeholder), nil
	case KindDecrement:
		return fmt.Sprintf("%s = %s - %s", op.Field, op.Field, placeholder), nil
	case KindMultiply:
		return fmt.Sprintf("%s = %s * %s", op.Field, op.Field, placeholder), nil
	case KindDivide:
		return fmt.Sprintf("%s = %s / %s", op.Field, op.Field, placeholder), nil
	}
	return "", fmt.Errorf("unknown update kind %q for %s", op.Kind, op.Field)
}

// UpdateSet is an ordered list of update operations, at most one per
// field. Adding a second op for a field replaces the first in place.
type UpdateSet struct {
	ops []UpdateOp
}

// NewUpdateSet returns an empty UpdateSet.
func NewUpdateSet() *UpdateSet {
	return &UpdateSet{}
}

func (s *UpdateSet) add(op UpdateOp) *UpdateSet {
	for i := range s.ops {
		if s.ops[i].Field == op.Field {
			s.ops[i] = op
			return s
		}
	}
	s.ops = append(s.ops, op)
	return s
}

func (s *UpdateSet) Set(field string, v any) *UpdateSet {
	return s.add(UpdateOp{Field: field, Kind: KindSet, Value: v})
}

func (s *UpdateSet) Increment(field string, v any) *UpdateSet {
	return s.add(UpdateOp{Field: field, Kind: KindIncrement, Value: v})
}

func (s *UpdateSet) Decrement(field string, v any) *UpdateSet {
	return s.add(UpdateOp{Field: field, Kind: KindDecrement, Value: v})
}

func (s *UpdateSet) Multiply(field string, v any) *UpdateSet {
	return s.add(UpdateOp{Field: field, Kind: KindMultiply, Value: v})
}

func (s *UpdateSet) Divide(field string, v any) *UpdateSet {
	return s.add(UpdateOp{Field: field, Kind: KindDivide, Value: v})
}

// Ops returns the operations in insertion order.
func (s *UpdateSet) Ops() []UpdateOp {
	if s == nil {
		return nil
	}
	return append([]UpdateOp(nil), s.ops...)
}

// Len returns the number of operations.
func (s *UpdateSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ops)
}

// Compile renders the assignments joined by ", " with placeholders
// numbered from 1, plus the operand values in the same order.
func (s *UpdateSet) Compile(d schema.Dialect) (string, []any, error) {
	if s.Len() == 0 {
		return "", nil, fmt.Errorf("empty update set")
	}
	parts := make([]string, 0, len(s.ops))
	params := make([]any, 0, len(s.ops))
	for i, op := range s.ops {
		a, err := op.Assignment(d.Placeholder(i + 1))
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, a)
		params = append(params, op.Value)
	}
	return strings.Join(parts, ", "), params, nil
}
