package query

import "github.com/roach88/storehaus/internal/schema"

// Operator is a comparison operator of a filter condition.
type Operator string

const (
	OpEq           Operator = "eq"
	OpNe           Operator = "ne"
	OpGt           Operator = "gt"
	OpGte          Operator = "gte"
	OpLt           Operator = "lt"
	OpLte          Operator = "lte"
	OpLike         Operator = "like"
	OpILike        Operator = "ilike"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpIsNull       Operator = "is_null"
	OpIsNotNull    Operator = "is_not_null"
	OpArrayOverlap Operator = "array_overlap"
	OpContainsAll  Operator = "contains_all"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpLike, OpILike,
		OpIn, OpNotIn, OpIsNull, OpIsNotNull, OpArrayOverlap, OpContainsAll:
		return true
	}
	return false
}

// takesList reports whether the operator compares against a value list.
func (op Operator) takesList() bool {
	switch op {
	case OpIn, OpNotIn, OpArrayOverlap, OpContainsAll:
		return true
	}
	return false
}

// Logic joins the children of a Group.
type Logic string

const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// Filter is a node of a predicate tree: either a Condition leaf or a
// Group of child filters. Sealed.
type Filter interface {
	filter()
}

// Condition is a leaf predicate {field, operator, value}. Scalar
// operators read Value; list operators (in, not_in, array_overlap,
// contains_all) read Values. A nil Values slice on a list operator is a
// missing value, an empty non-nil slice is an empty list.
type Condition struct {
	Field  string
	Op     Operator
	Value  any
	Values []any
}

func (Condition) filter() {}

// Group combines child filters with AND or OR.
type Group struct {
	Logic   Logic
	Filters []Filter
}

func (Group) filter() {}

// Eq matches field = value. A nil value matches NULL.
func Eq(field string, v any) Condition { return Condition{Field: field, Op: OpEq, Value: v} }

// Ne matches field != value. A nil value matches NOT NULL.
func Ne(field string, v any) Condition { return Condition{Field: field, Op: OpNe, Value: v} }

func Gt(field string, v any) Condition  { return Condition{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Condition { return Condition{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Condition  { return Condition{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Condition { return Condition{Field: field, Op: OpLte, Value: v} }

// Like is a case-sensitive pattern match.
func Like(field, pattern string) Condition {
	return Condition{Field: field, Op: OpLike, Value: pattern}
}

// ILike is a case-insensitive pattern match.
func ILike(field, pattern string) Condition {
	return Condition{Field: field, Op: OpILike, Value: pattern}
}

// In matches field against a value list. An empty list matches no rows.
func In(field string, vs ...any) Condition {
	return Condition{Field: field, Op: OpIn, Values: list(vs)}
}

// NotIn excludes a value list. An empty list matches every row.
func NotIn(field string, vs ...any) Condition {
	return Condition{Field: field, Op: OpNotIn, Values: list(vs)}
}

func IsNull(field string) Condition    { return Condition{Field: field, Op: OpIsNull} }
func IsNotNull(field string) Condition { return Condition{Field: field, Op: OpIsNotNull} }

// ArrayOverlap matches rows whose JSON array column shares at least one
// element with vs.
func ArrayOverlap(field string, vs ...any) Condition {
	return Condition{Field: field, Op: OpArrayOverlap, Values: list(vs)}
}

// ContainsAll matches rows whose JSON array column contains every element
// of vs.
func ContainsAll(field string, vs ...any) Condition {
	return Condition{Field: field, Op: OpContainsAll, Values: list(vs)}
}

// AllOf groups filters with AND.
func AllOf(fs ...Filter) Group { return Group{Logic: And, Filters: fs} }

// AnyOf groups filters with OR.
func AnyOf(fs ...Filter) Group { return Group{Logic: Or, Filters: fs} }

// HasAnyTag matches records carrying at least one of tags.
func HasAnyTag(tags ...string) Condition {
	return ArrayOverlap(schema.TagsColumn, tagValues(tags)...)
}

// HasAllTags matches records carrying every one of tags. Each tag is
// tested as a whole set element, never as a substring.
func HasAllTags(tags ...string) Condition {
	return ContainsAll(schema.TagsColumn, tagValues(tags)...)
}

// HasTag matches records carrying tag.
func HasTag(tag string) Condition {
	return HasAnyTag(tag)
}

func tagValues(tags []string) []any {
	norm := schema.NormalizeTags(tags)
	out := make([]any, len(norm))
	for i, t := range norm {
		out[i] = t
	}
	return out
}

// list turns variadic arguments into a non-nil slice so that In() with no
// arguments is an empty list rather than a missing value.
func list(vs []any) []any {
	if vs == nil {
		return []any{}
	}
	return vs
}
