package query

import (
	"fmt"
	"strings"
)

// JoinType is the kind of JOIN.
type JoinType string

const (
	InnerJoin JoinType = "inner"
	LeftJoin  JoinType = "left"
	RightJoin JoinType = "right"
	FullJoin  JoinType = "full"
	CrossJoin JoinType = "cross"
)

func (t JoinType) keyword() (string, error) {
	switch t {
	case InnerJoin, "":
		return "INNER JOIN", nil
	case LeftJoin:
		return "LEFT JOIN", nil
	case RightJoin:
		return "RIGHT JOIN", nil
	case FullJoin:
		return "FULL OUTER JOIN", nil
	case CrossJoin:
		return "CROSS JOIN", nil
	}
	return "", fmt.Errorf("unknown join type %q", t)
}

// Join is a JOIN clause. Exactly one of On or Using is used; a cross
// join takes neither.
type Join struct {
	Type  JoinType
	Table string
	Alias string
	On    *JoinOn
	Using []string
}

// JoinOn is an equality join condition.
type JoinOn struct {
	Left  string
	Right string
}

// JoinOnFields builds a join with an ON left = right condition.
func JoinOnFields(t JoinType, table, left, right string) Join {
	return Join{Type: t, Table: table, On: &JoinOn{Left: left, Right: right}}
}

// JoinUsing builds a join with a USING (cols) condition.
func JoinUsing(t JoinType, table string, cols ...string) Join {
	return Join{Type: t, Table: table, Using: cols}
}

// As sets the join alias.
func (j Join) As(alias string) Join {
	j.Alias = alias
	return j
}

func (j Join) render() (string, error) {
	kw, err := j.Type.keyword()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(kw)
	b.WriteByte(' ')
	b.WriteString(j.Table)
	if j.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(j.Alias)
	}
	switch {
	case j.On != nil:
		fmt.Fprintf(&b, " ON %s = %s", j.On.Left, j.On.Right)
	case len(j.Using) > 0:
		fmt.Fprintf(&b, " USING (%s)", strings.Join(j.Using, ", "))
	case j.Type != CrossJoin:
		return "", fmt.Errorf("join %s: missing ON or USING condition", j.Table)
	}
	return b.String(), nil
}

// AggFunc is an aggregate function.
type AggFunc string

const (
	Count         AggFunc = "COUNT"
	CountDistinct AggFunc = "COUNT_DISTINCT"
	Sum           AggFunc = "SUM"
	Avg           AggFunc = "AVG"
	Min           AggFunc = "MIN"
	Max           AggFunc = "MAX"
)

// SelectField is one entry of the SELECT list: all columns, a column
// (optionally aliased), or an aggregate over a column or *.
type SelectField struct {
	All   bool
	Field string
	Func  AggFunc
	Alias string
}

// AllColumns selects *.
func AllColumns() SelectField { return SelectField{All: true} }

// Column selects a plain column.
func Column(field string) SelectField { return SelectField{Field: field} }

// Aggregate selects fn(field). An empty field means *.
func Aggregate(fn AggFunc, field string) SelectField {
	return SelectField{Func: fn, Field: field}
}

// CountAll selects COUNT(*).
func CountAll() SelectField { return SelectField{Func: Count} }

// As sets the output alias.
func (s SelectField) As(alias string) SelectField {
	s.Alias = alias
	return s
}

func (s SelectField) render() (string, error) {
	if s.All {
		return "*", nil
	}
	var expr string
	switch s.Func {
	case "":
		if s.Field == "" {
			return "", fmt.Errorf("select field without column")
		}
		expr = s.Field
	case Count, Sum, Avg, Min, Max:
		field := s.Field
		if field == "" {
			if s.Func != Count {
				return "", fmt.Errorf("%s requires a column", s.Func)
			}
			field = "*"
		}
		expr = fmt.Sprintf("%s(%s)", s.Func, field)
	case CountDistinct:
		if s.Field == "" {
			return "", fmt.Errorf("COUNT DISTINCT requires a column")
		}
		expr = fmt.Sprintf("COUNT(DISTINCT %s)", s.Field)
	default:
		return "", fmt.Errorf("unknown aggregate %q", s.Func)
	}
	if s.Alias != "" {
		expr += " AS " + s.Alias
	}
	return expr, nil
}

// GroupBy lists grouping columns plus optional HAVING predicates over
// aggregate expressions. Multiple HAVING filters are joined with AND.
type GroupBy struct {
	Fields []string
	Having []Filter
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is one ORDER BY term.
type Order struct {
	Field     string
	Direction Direction
}
