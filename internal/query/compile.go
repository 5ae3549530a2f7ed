package query

import (
	"fmt"
	"strings"

	"github.com/roach88/storehaus/internal/schema"
)

// Compiled holds the SQL fragments of a compiled Query. Non-empty
// fragments carry their leading keyword ("WHERE ...", "GROUP BY ...").
//
// WHERE and HAVING share one placeholder sequence: WhereParams bind $1..$n
// and HavingParams continue at $n+1, so Params() lines up with every
// placeholder in statement order.
type Compiled struct {
	Select  string
	Joins   string
	Where   string
	GroupBy string
	Having  string
	OrderBy string
	Limit   string

	WhereParams  []any
	HavingParams []any
}

// Params returns WhereParams followed by HavingParams.
func (c Compiled) Params() []any {
	out := make([]any, 0, len(c.WhereParams)+len(c.HavingParams))
	out = append(out, c.WhereParams...)
	return append(out, c.HavingParams...)
}

// SelectFrom assembles a full SELECT against table. A non-empty
// selectList overrides the compiled select list.
func (c Compiled) SelectFrom(table, selectList string) string {
	if selectList == "" {
		selectList = c.Select
	}
	return join("SELECT "+selectList+" FROM "+table,
		c.Joins, c.Where, c.GroupBy, c.Having, c.OrderBy, c.Limit)
}

// CountFrom assembles SELECT COUNT(*) over the joined and filtered rows.
// It binds WhereParams only.
func (c Compiled) CountFrom(table string) string {
	return join("SELECT COUNT(*) FROM "+table, c.Joins, c.Where)
}

func join(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Build compiles q for dialect d. A nil query compiles to "SELECT *" with
// no clauses. Build is pure and safe for concurrent use.
func Build(q *Query, d schema.Dialect) (Compiled, error) {
	out := Compiled{Select: "*"}
	if q == nil {
		return out, nil
	}

	if len(q.Select) > 0 {
		items := make([]string, 0, len(q.Select))
		for _, sf := range q.Select {
			s, err := sf.render()
			if err != nil {
				return Compiled{}, fmt.Errorf("select: %w", err)
			}
			items = append(items, s)
		}
		out.Select = strings.Join(items, ", ")
	}

	if len(q.Joins) > 0 {
		items := make([]string, 0, len(q.Joins))
		for _, j := range q.Joins {
			s, err := j.render()
			if err != nil {
				return Compiled{}, err
			}
			items = append(items, s)
		}
		out.Joins = strings.Join(items, " ")
	}

	c := &compiler{dialect: d}

	if len(q.Filters) > 0 {
		where, err := c.conjunction(q.Filters)
		if err != nil {
			return Compiled{}, fmt.Errorf("where: %w", err)
		}
		out.Where = "WHERE " + where
		out.WhereParams = c.params
	}

	if q.Group != nil {
		if len(q.Group.Fields) > 0 {
			out.GroupBy = "GROUP BY " + strings.Join(q.Group.Fields, ", ")
		}
		if len(q.Group.Having) > 0 {
			n := len(c.params)
			having, err := c.conjunction(q.Group.Having)
			if err != nil {
				return Compiled{}, fmt.Errorf("having: %w", err)
			}
			out.Having = "HAVING " + having
			out.HavingParams = c.params[n:]
			out.WhereParams = c.params[:n:n]
		}
	}

	if len(q.OrderBy) > 0 {
		items := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := o.Direction
			if dir == "" {
				dir = Asc
			}
			if dir != Asc && dir != Desc {
				return Compiled{}, fmt.Errorf("order by %s: unknown direction %q", o.Field, o.Direction)
			}
			items = append(items, fmt.Sprintf("%s %s", o.Field, dir))
		}
		out.OrderBy = "ORDER BY " + strings.Join(items, ", ")
	}

	out.Limit = d.LimitOffset(q.Limit, q.Offset)
	return out, nil
}

// CompileFilters compiles a filter list joined with AND, numbering
// placeholders from $1. Returns "" and no params for an empty list.
func CompileFilters(fs []Filter, d schema.Dialect) (string, []any, error) {
	if len(fs) == 0 {
		return "", nil, nil
	}
	c := &compiler{dialect: d}
	sql, err := c.conjunction(fs)
	if err != nil {
		return "", nil, err
	}
	return sql, c.params, nil
}

// compiler walks filter trees depth-first, appending each bound value at
// the moment its placeholder is rendered.
type compiler struct {
	dialect schema.Dialect
	params  []any
}

func (c *compiler) bind(v any) string {
	c.params = append(c.params, v)
	return c.dialect.Placeholder(len(c.params))
}

func (c *compiler) bindAll(vs []any) []string {
	phs := make([]string, len(vs))
	for i, v := range vs {
		phs[i] = c.bind(v)
	}
	return phs
}

func (c *compiler) conjunction(fs []Filter) (string, error) {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		s, err := c.filter(f)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *compiler) filter(f Filter) (string, error) {
	switch v := f.(type) {
	case Condition:
		return c.condition(v)
	case *Condition:
		if v == nil {
			return "", fmt.Errorf("nil condition")
		}
		return c.condition(*v)
	case Group:
		return c.group(v)
	case *Group:
		if v == nil {
			return "", fmt.Errorf("nil group")
		}
		return c.group(*v)
	case nil:
		return "", fmt.Errorf("nil filter")
	default:
		return "", fmt.Errorf("unsupported filter type: %T", f)
	}
}

func (c *compiler) group(g Group) (string, error) {
	var sep string
	switch g.Logic {
	case And, "":
		sep = " AND "
	case Or:
		sep = " OR "
	default:
		return "", fmt.Errorf("unknown logical operator %q", g.Logic)
	}
	if len(g.Filters) == 0 {
		// Identity element of the operator.
		if g.Logic == Or {
			return "1=0", nil
		}
		return "1=1", nil
	}
	parts := make([]string, 0, len(g.Filters))
	for _, child := range g.Filters {
		s, err := c.filter(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *compiler) condition(cond Condition) (string, error) {
	if cond.Field == "" {
		return "", fmt.Errorf("condition without field")
	}
	f := cond.Field

	if cond.Op.takesList() {
		vs := cond.Values
		if vs == nil {
			// Missing list: NOT IN degrades to always-true, the rest to
			// always-false.
			if cond.Op == OpNotIn {
				return "1=1", nil
			}
			return "1=0", nil
		}
		switch cond.Op {
		case OpIn:
			if len(vs) == 0 {
				return "1=0", nil
			}
			return fmt.Sprintf("%s IN (%s)", f, strings.Join(c.bindAll(vs), ", ")), nil
		case OpNotIn:
			if len(vs) == 0 {
				return "1=1", nil
			}
			return fmt.Sprintf("%s NOT IN (%s)", f, strings.Join(c.bindAll(vs), ", ")), nil
		case OpArrayOverlap:
			if len(vs) == 0 {
				return "1=0", nil
			}
			return c.dialect.Overlap(f, c.bindAll(vs)), nil
		case OpContainsAll:
			if len(vs) == 0 {
				// Every set contains the empty set.
				return "1=1", nil
			}
			return c.dialect.ContainsAll(f, c.bindAll(distinct(vs))), nil
		}
	}

	switch cond.Op {
	case OpIsNull:
		return f + " IS NULL", nil
	case OpIsNotNull:
		return f + " IS NOT NULL", nil
	case OpEq:
		if cond.Value == nil {
			return f + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", f, c.bind(cond.Value)), nil
	case OpNe:
		if cond.Value == nil {
			return f + " IS NOT NULL", nil
		}
		return fmt.Sprintf("%s != %s", f, c.bind(cond.Value)), nil
	}

	var sym string
	switch cond.Op {
	case OpGt:
		sym = ">"
	case OpGte:
		sym = ">="
	case OpLt:
		sym = "<"
	case OpLte:
		sym = "<="
	case OpLike:
		sym = "LIKE"
	case OpILike:
	default:
		return "", fmt.Errorf("unknown operator %q on %s", cond.Op, f)
	}
	if cond.Value == nil {
		return "1=0", nil
	}
	if cond.Op == OpILike {
		return c.dialect.ILike(f, c.bind(cond.Value)), nil
	}
	return fmt.Sprintf("%s %s %s", f, sym, c.bind(cond.Value)), nil
}

// distinct drops repeated values, keeping first occurrences. Values that
// are not comparable are kept as-is.
func distinct(vs []any) []any {
	out := make([]any, 0, len(vs))
	seen := make(map[any]struct{}, len(vs))
	for _, v := range vs {
		if isComparable(v) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
		}
		out = append(out, v)
	}
	return out
}

func isComparable(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}
