package query

// Query is a declarative query description: filters, joins, grouping,
// ordering, paging, select list and optional atomic update operations.
// Methods mutate the receiver and return it for chaining; use Clone to
// derive a variant without touching the original.
type Query struct {
	Filters []Filter
	Joins   []Join
	Group   *GroupBy
	OrderBy []Order
	Limit   *int
	Offset  *int
	Select  []SelectField
	Updates *UpdateSet
}

// New returns an empty Query.
func New() *Query {
	return &Query{}
}

// Where appends top-level filters. Top-level filters are joined with AND.
func (q *Query) Where(fs ...Filter) *Query {
	q.Filters = append(q.Filters, fs...)
	return q
}

// Join appends a JOIN clause.
func (q *Query) Join(joins ...Join) *Query {
	q.Joins = append(q.Joins, joins...)
	return q
}

// GroupBy sets the grouping columns.
func (q *Query) GroupBy(fields ...string) *Query {
	if q.Group == nil {
		q.Group = &GroupBy{}
	}
	q.Group.Fields = append(q.Group.Fields, fields...)
	return q
}

// Having appends HAVING predicates. It implies a GROUP BY.
func (q *Query) Having(fs ...Filter) *Query {
	if q.Group == nil {
		q.Group = &GroupBy{}
	}
	q.Group.Having = append(q.Group.Having, fs...)
	return q
}

// Order appends an ORDER BY term.
func (q *Query) Order(field string, dir Direction) *Query {
	q.OrderBy = append(q.OrderBy, Order{Field: field, Direction: dir})
	return q
}

// Take sets LIMIT.
func (q *Query) Take(n int) *Query {
	q.Limit = &n
	return q
}

// Skip sets OFFSET.
func (q *Query) Skip(n int) *Query {
	q.Offset = &n
	return q
}

// Fields appends entries to the SELECT list.
func (q *Query) Fields(fs ...SelectField) *Query {
	q.Select = append(q.Select, fs...)
	return q
}

// Update attaches atomic update operations, used by update-where.
func (q *Query) Update(s *UpdateSet) *Query {
	q.Updates = s
	return q
}

// HasUpdates reports whether atomic update operations are attached.
func (q *Query) HasUpdates() bool {
	return q != nil && q.Updates.Len() > 0
}

// Clone returns a copy whose slices and pointers can be changed without
// affecting q. Filter trees and update sets are shared; they are not
// modified by this package.
func (q *Query) Clone() *Query {
	if q == nil {
		return New()
	}
	c := *q
	c.Filters = append([]Filter(nil), q.Filters...)
	c.Joins = append([]Join(nil), q.Joins...)
	c.OrderBy = append([]Order(nil), q.OrderBy...)
	c.Select = append([]SelectField(nil), q.Select...)
	if q.Group != nil {
		g := *q.Group
		g.Fields = append([]string(nil), q.Group.Fields...)
		g.Having = append([]Filter(nil), q.Group.Having...)
		c.Group = &g
	}
	if q.Limit != nil {
		n := *q.Limit
		c.Limit = &n
	}
	if q.Offset != nil {
		n := *q.Offset
		c.Offset = &n
	}
	return &c
}
