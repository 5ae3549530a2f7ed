package query

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storehaus/internal/schema"
)

// Mode selects which statement a Document compiles to.
type Mode string

const (
	ModeSelect Mode = "select"
	ModeCount  Mode = "count"
	ModeUpdate Mode = "update"
	ModeDelete Mode = "delete"
)

// Document is the YAML form of a query description:
//
//	table: users
//	mode: select
//	where:
//	  - {field: age, op: gte, value: 18}
//	  - any:
//	      - {field: name, op: like, value: "A%"}
//	      - {field: email, op: is_null}
//	  - tags_all: [vip]
//	order_by:
//	  - {field: name, dir: desc}
//	limit: 10
type Document struct {
	Table      string        `yaml:"table"`
	Mode       Mode          `yaml:"mode"`
	PrimaryKey string        `yaml:"primary_key"`
	SoftDelete string        `yaml:"soft_delete"`
	Select     []SelectDoc   `yaml:"select"`
	Joins      []JoinDoc     `yaml:"joins"`
	Where      []FilterDoc   `yaml:"where"`
	GroupBy    []string      `yaml:"group_by"`
	Having     []FilterDoc   `yaml:"having"`
	OrderBy    []OrderDoc    `yaml:"order_by"`
	Limit      *int          `yaml:"limit"`
	Offset     *int          `yaml:"offset"`
	Update     []UpdateOpDoc `yaml:"update"`
}

// FilterDoc is one filter node. Exactly one of the condition fields
// (field/op/value), any, all, tags_any or tags_all is set.
type FilterDoc struct {
	Field   string      `yaml:"field"`
	Op      Operator    `yaml:"op"`
	Value   any         `yaml:"value"`
	Any     []FilterDoc `yaml:"any"`
	All     []FilterDoc `yaml:"all"`
	TagsAny []string    `yaml:"tags_any"`
	TagsAll []string    `yaml:"tags_all"`
}

// SelectDoc is one select list entry.
type SelectDoc struct {
	Field string `yaml:"field"`
	Func  string `yaml:"func"`
	Alias string `yaml:"alias"`
}

// JoinDoc is one join clause.
type JoinDoc struct {
	Type  JoinType `yaml:"type"`
	Table string   `yaml:"table"`
	Alias string   `yaml:"alias"`
	On    *JoinOn  `yaml:"on"`
	Using []string `yaml:"using"`
}

// OrderDoc is one ORDER BY term.
type OrderDoc struct {
	Field string `yaml:"field"`
	Dir   string `yaml:"dir"`
}

// UpdateOpDoc is one atomic update operation.
type UpdateOpDoc struct {
	Field string     `yaml:"field"`
	Op    UpdateKind `yaml:"op"`
	Value any        `yaml:"value"`
}

// ParseDocument decodes a YAML document, rejecting unknown keys.
func ParseDocument(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty query document")
		}
		return nil, fmt.Errorf("decode query document: %w", err)
	}
	if doc.Table == "" {
		return nil, fmt.Errorf("query document: table is required")
	}
	if doc.Mode == "" {
		doc.Mode = ModeSelect
		if len(doc.Update) > 0 {
			doc.Mode = ModeUpdate
		}
	}
	return &doc, nil
}

// ParseDocumentBytes is ParseDocument over a byte slice.
func ParseDocumentBytes(b []byte) (*Document, error) {
	return ParseDocument(bytes.NewReader(b))
}

// Query converts the document into a Query.
func (doc *Document) Query() (*Query, error) {
	q := New()

	for i, s := range doc.Select {
		sf, err := s.selectField()
		if err != nil {
			return nil, fmt.Errorf("select[%d]: %w", i, err)
		}
		q.Fields(sf)
	}
	for _, j := range doc.Joins {
		q.Join(Join{Type: j.Type, Table: j.Table, Alias: j.Alias, On: j.On, Using: j.Using})
	}
	for i, f := range doc.Where {
		filter, err := f.filter()
		if err != nil {
			return nil, fmt.Errorf("where[%d]: %w", i, err)
		}
		q.Where(filter)
	}
	if len(doc.GroupBy) > 0 {
		q.GroupBy(doc.GroupBy...)
	}
	for i, f := range doc.Having {
		filter, err := f.filter()
		if err != nil {
			return nil, fmt.Errorf("having[%d]: %w", i, err)
		}
		q.Having(filter)
	}
	for _, o := range doc.OrderBy {
		q.Order(o.Field, Direction(strings.ToUpper(o.Dir)))
	}
	q.Limit = doc.Limit
	q.Offset = doc.Offset

	if len(doc.Update) > 0 {
		set := NewUpdateSet()
		for _, u := range doc.Update {
			set.add(UpdateOp{Field: u.Field, Kind: u.Op, Value: u.Value})
		}
		q.Update(set)
	}
	return q, nil
}

func (s SelectDoc) selectField() (SelectField, error) {
	if s.Func == "" {
		if s.Field == "" || s.Field == "*" {
			return AllColumns(), nil
		}
		return Column(s.Field).As(s.Alias), nil
	}
	fn := AggFunc(strings.ToUpper(strings.ReplaceAll(s.Func, " ", "_")))
	field := s.Field
	if field == "*" {
		field = ""
	}
	return Aggregate(fn, field).As(s.Alias), nil
}

func (f FilterDoc) filter() (Filter, error) {
	switch {
	case len(f.Any) > 0 || len(f.All) > 0:
		logic, children := And, f.All
		if len(f.Any) > 0 {
			logic, children = Or, f.Any
		}
		g := Group{Logic: logic}
		for i, c := range children {
			child, err := c.filter()
			if err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
			g.Filters = append(g.Filters, child)
		}
		return g, nil
	case len(f.TagsAny) > 0:
		return HasAnyTag(f.TagsAny...), nil
	case len(f.TagsAll) > 0:
		return HasAllTags(f.TagsAll...), nil
	}

	if f.Field == "" {
		return nil, fmt.Errorf("filter needs a field, a group or a tag list")
	}
	if !f.Op.Valid() {
		return nil, fmt.Errorf("unknown operator %q", f.Op)
	}
	c := Condition{Field: f.Field, Op: f.Op}
	if f.Op.takesList() {
		switch v := f.Value.(type) {
		case nil:
		case []any:
			c.Values = v
		default:
			return nil, fmt.Errorf("%s on %s expects a list value", f.Op, f.Field)
		}
		return c, nil
	}
	c.Value = f.Value
	return c, nil
}

// Statement is a compiled SQL statement with its bound parameters.
type Statement struct {
	SQL    string
	Params []any
}

// Compile converts the document to a Query and compiles it into one
// statement according to Mode.
func (doc *Document) Compile(d schema.Dialect) (Statement, []string, error) {
	q, err := doc.Query()
	if err != nil {
		return Statement{}, nil, err
	}
	warnings := Validate(q).Warnings

	compiled, err := Build(q, d)
	if err != nil {
		return Statement{}, warnings, err
	}

	switch doc.Mode {
	case ModeSelect:
		return Statement{SQL: compiled.SelectFrom(doc.Table, ""), Params: compiled.Params()}, warnings, nil
	case ModeCount:
		return Statement{SQL: compiled.CountFrom(doc.Table), Params: compiled.WhereParams}, warnings, nil
	case ModeUpdate:
		set, setParams, err := q.Updates.Compile(d)
		if err != nil {
			return Statement{}, warnings, err
		}
		sql, params := UpdateWhere(d, doc.Table, set, setParams, compiled.Where, compiled.WhereParams, doc.SoftDelete)
		return Statement{SQL: sql, Params: params}, warnings, nil
	case ModeDelete:
		pk := doc.PrimaryKey
		if pk == "" {
			pk = "id"
		}
		return Statement{
			SQL:    DeleteWhere(d, doc.Table, compiled.Where, pk, doc.SoftDelete),
			Params: compiled.WhereParams,
		}, warnings, nil
	}
	return Statement{}, warnings, fmt.Errorf("unknown mode %q", doc.Mode)
}
