package query

import "fmt"

// ValidationResult lists defects found in a query description.
//
// Defective queries still compile: a comparison leaf without a value
// renders as an always-false predicate. Callers should treat any
// warning as a bug in the code that built the query rather than as a
// supported shortcut.
type ValidationResult struct {
	// Valid is true when Warnings is empty.
	Valid bool

	Warnings []string
}

// Validate inspects q without compiling it. It is pure.
func Validate(q *Query) ValidationResult {
	v := &validator{warnings: []string{}}
	if q != nil {
		for i, f := range q.Filters {
			v.validateFilter(fmt.Sprintf("where[%d]", i), f)
		}
		if q.Group != nil {
			for i, f := range q.Group.Having {
				v.validateFilter(fmt.Sprintf("having[%d]", i), f)
			}
		}
		if q.Limit != nil && *q.Limit < 0 {
			v.addWarning("negative limit %d", *q.Limit)
		}
		if q.Offset != nil && *q.Offset < 0 {
			v.addWarning("negative offset %d", *q.Offset)
		}
		for _, op := range q.Updates.Ops() {
			if op.Kind == KindDivide && isZero(op.Value) {
				v.addWarning("division of %s by zero", op.Field)
			}
		}
	}
	return ValidationResult{Valid: len(v.warnings) == 0, Warnings: v.warnings}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateFilter(path string, f Filter) {
	switch x := f.(type) {
	case Condition:
		v.validateCondition(path, x)
	case *Condition:
		if x == nil {
			v.addWarning("%s: nil condition", path)
			return
		}
		v.validateCondition(path, *x)
	case Group:
		v.validateGroup(path, x)
	case *Group:
		if x == nil {
			v.addWarning("%s: nil group", path)
			return
		}
		v.validateGroup(path, *x)
	default:
		v.addWarning("%s: unsupported filter type %T", path, f)
	}
}

func (v *validator) validateGroup(path string, g Group) {
	if g.Logic != And && g.Logic != Or && g.Logic != "" {
		v.addWarning("%s: unknown logical operator %q", path, g.Logic)
	}
	if len(g.Filters) == 0 {
		v.addWarning("%s: empty %s group", path, g.Logic)
	}
	for i, child := range g.Filters {
		v.validateFilter(fmt.Sprintf("%s.%d", path, i), child)
	}
}

func (v *validator) validateCondition(path string, c Condition) {
	if c.Field == "" {
		v.addWarning("%s: condition without field", path)
	}
	if !c.Op.Valid() {
		v.addWarning("%s: unknown operator %q", path, c.Op)
		return
	}
	switch {
	case c.Op.takesList():
		if c.Values == nil {
			v.addWarning("%s: %s on %s has no value list", path, c.Op, c.Field)
		}
	case c.Op == OpEq, c.Op == OpNe, c.Op == OpIsNull, c.Op == OpIsNotNull:
	default:
		if c.Value == nil {
			v.addWarning("%s: %s on %s has no value", path, c.Op, c.Field)
		}
	}
}

func isZero(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 0
	case int64:
		return n == 0
	case int32:
		return n == 0
	case float64:
		return n == 0
	case float32:
		return n == 0
	}
	return false
}
