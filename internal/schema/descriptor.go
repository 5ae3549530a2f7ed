package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Provider exposes the static SQL and field metadata the store engine
// needs for one record type. Engines never derive SQL from struct shape
// themselves; they ask the provider.
type Provider interface {
	TableName() string
	// PrimaryKeyField returns "" for tables without a primary key.
	PrimaryKeyField() string
	CreateFields() []string
	UpdateFields() []string
	SupportsSoftDelete() bool
	SoftDeleteField() string

	CreateSQL() string
	UpdateSQL() string
	ListAllSQL() string
	GetByIDSQL() string
	DeleteByIDSQL() string
	CountAllSQL() string
	SelectBaseSQL() string
	CountBaseSQL() string

	// Columns lists every column in table order, system columns last.
	Columns() []string
	Dialect() Dialect
}

// Descriptor is the explicit schema description of one record type. It
// is built once, validated, and renders all static SQL up front.
type Descriptor struct {
	table   string
	dialect Dialect
	fields  []Field

	pk         *Field
	softDelete *Field
	create     []string
	update     []string

	createSQL     string
	updateSQL     string
	listAllSQL    string
	getByIDSQL    string
	deleteByIDSQL string
	countAllSQL   string
	selectBaseSQL string
	countBaseSQL  string
}

var _ Provider = (*Descriptor)(nil)

// New validates the field list and builds a Descriptor.
//
// The primary key, when present, is never an update field. A UUID
// primary key is a create field; a database-generated key is not. At most
// one field may carry the soft-delete flag and it must be boolean.
func New(table string, dialect Dialect, fields ...Field) (*Descriptor, error) {
	if !validIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	d := &Descriptor{
		table:   table,
		dialect: dialect,
		fields:  append([]Field(nil), fields...),
	}

	seen := make(map[string]bool, len(fields))
	for i := range d.fields {
		f := &d.fields[i]
		if !validIdentifier(f.Name) {
			return nil, fmt.Errorf("table %s: invalid column name %q", table, f.Name)
		}
		if isSystemColumn(f.Name) {
			return nil, fmt.Errorf("table %s: column %q is reserved", table, f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("table %s: duplicate column %q", table, f.Name)
		}
		seen[f.Name] = true

		if f.PrimaryKey {
			if d.pk != nil {
				return nil, fmt.Errorf("table %s: multiple primary keys (%s, %s)", table, d.pk.Name, f.Name)
			}
			if f.Update {
				return nil, fmt.Errorf("table %s: primary key %s cannot be an update field", table, f.Name)
			}
			if f.GenerateUUID {
				f.Type = TypeUUID
				f.Create = true
			}
			d.pk = f
		} else if f.GenerateUUID {
			return nil, fmt.Errorf("table %s: uuid option on non-key column %s", table, f.Name)
		}

		if f.SoftDelete {
			if d.softDelete != nil {
				return nil, fmt.Errorf("table %s: multiple soft-delete columns (%s, %s)", table, d.softDelete.Name, f.Name)
			}
			if f.Type != TypeBoolean {
				return nil, fmt.Errorf("table %s: soft-delete column %s must be boolean", table, f.Name)
			}
			d.softDelete = f
		}

		if f.ReadOnly && (f.Create || f.Update) {
			return nil, fmt.Errorf("table %s: readonly column %s cannot be create or update", table, f.Name)
		}
		if f.Create {
			d.create = append(d.create, f.Name)
		}
		if f.Update {
			d.update = append(d.update, f.Name)
		}
	}

	if len(d.create) == 0 {
		return nil, fmt.Errorf("table %s: no create fields", table)
	}

	d.render()
	return d, nil
}

// render builds the static SQL text.
func (d *Descriptor) render() {
	now := d.dialect.Now()

	placeholders := make([]string, 0, len(d.create)+1)
	for i := range d.create {
		placeholders = append(placeholders, d.dialect.Placeholder(i+1))
	}
	placeholders = append(placeholders, d.dialect.Placeholder(len(d.create)+1))
	d.createSQL = fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s) VALUES (%s, %s, %s) RETURNING *",
		d.table,
		strings.Join(d.create, ", "), TagsColumn, CreatedAtColumn, UpdatedAtColumn,
		strings.Join(placeholders, ", "), now, now,
	)

	if d.pk != nil {
		assignments := make([]string, 0, len(d.update)+2)
		for i, name := range d.update {
			assignments = append(assignments, fmt.Sprintf("%s = %s", name, d.dialect.Placeholder(i+1)))
		}
		n := len(d.update) + 1
		assignments = append(assignments,
			fmt.Sprintf("%s = %s", TagsColumn, d.dialect.Placeholder(n)),
			fmt.Sprintf("%s = %s", UpdatedAtColumn, now))
		d.updateSQL = fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s RETURNING *",
			d.table, strings.Join(assignments, ", "), d.pk.Name, d.dialect.Placeholder(n+1))

		d.getByIDSQL = fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", d.table, d.pk.Name)
		d.deleteByIDSQL = fmt.Sprintf("DELETE FROM %s WHERE %s = $1", d.table, d.pk.Name)
	}

	if d.softDelete != nil {
		d.listAllSQL = fmt.Sprintf("SELECT * FROM %s WHERE %s = TRUE ORDER BY %s DESC",
			d.table, d.softDelete.Name, CreatedAtColumn)
	} else {
		d.listAllSQL = fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC", d.table, CreatedAtColumn)
	}

	d.countAllSQL = fmt.Sprintf("SELECT COUNT(*) AS total FROM %s", d.table)
	d.selectBaseSQL = fmt.Sprintf("SELECT * FROM %s", d.table)
	d.countBaseSQL = fmt.Sprintf("SELECT COUNT(*) FROM %s", d.table)
}

func (d *Descriptor) TableName() string { return d.table }
func (d *Descriptor) Dialect() Dialect  { return d.dialect }

func (d *Descriptor) PrimaryKeyField() string {
	if d.pk == nil {
		return ""
	}
	return d.pk.Name
}

// PrimaryKey returns the key field, or nil.
func (d *Descriptor) PrimaryKey() *Field {
	return d.pk
}

func (d *Descriptor) CreateFields() []string { return append([]string(nil), d.create...) }
func (d *Descriptor) UpdateFields() []string { return append([]string(nil), d.update...) }

func (d *Descriptor) SupportsSoftDelete() bool { return d.softDelete != nil }

func (d *Descriptor) SoftDeleteField() string {
	if d.softDelete == nil {
		return ""
	}
	return d.softDelete.Name
}

func (d *Descriptor) CreateSQL() string     { return d.createSQL }
func (d *Descriptor) UpdateSQL() string     { return d.updateSQL }
func (d *Descriptor) ListAllSQL() string    { return d.listAllSQL }
func (d *Descriptor) GetByIDSQL() string    { return d.getByIDSQL }
func (d *Descriptor) DeleteByIDSQL() string { return d.deleteByIDSQL }
func (d *Descriptor) CountAllSQL() string   { return d.countAllSQL }
func (d *Descriptor) SelectBaseSQL() string { return d.selectBaseSQL }
func (d *Descriptor) CountBaseSQL() string  { return d.countBaseSQL }

// Fields returns a copy of the user field definitions.
func (d *Descriptor) Fields() []Field {
	return append([]Field(nil), d.fields...)
}

func (d *Descriptor) Columns() []string {
	cols := make([]string, 0, len(d.fields)+3)
	for _, f := range d.fields {
		cols = append(cols, f.Name)
	}
	return append(cols, CreatedAtColumn, UpdatedAtColumn, TagsColumn)
}

// CreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement for the
// descriptor. Used by tests and tooling; migrations are out of scope.
func (d *Descriptor) CreateTableSQL() string {
	defs := make([]string, 0, len(d.fields)+3)
	for _, f := range d.fields {
		switch {
		case f.PrimaryKey && !f.GenerateUUID && f.Type == TypeInteger:
			defs = append(defs, fmt.Sprintf("%s %s", f.Name, d.dialect.SerialPrimaryKey()))
		case f.PrimaryKey:
			defs = append(defs, fmt.Sprintf("%s %s PRIMARY KEY", f.Name, d.dialect.ColumnType(f.Type)))
		case f.SoftDelete:
			defs = append(defs, fmt.Sprintf("%s BOOLEAN NOT NULL DEFAULT TRUE", f.Name))
		case f.Nullable:
			defs = append(defs, fmt.Sprintf("%s %s", f.Name, d.dialect.ColumnType(f.Type)))
		default:
			defs = append(defs, fmt.Sprintf("%s %s NOT NULL", f.Name, d.dialect.ColumnType(f.Type)))
		}
	}
	ts := d.dialect.ColumnType(TypeTimestamp)
	defs = append(defs,
		fmt.Sprintf("%s %s NOT NULL", CreatedAtColumn, ts),
		fmt.Sprintf("%s %s NOT NULL", UpdatedAtColumn, ts),
		fmt.Sprintf("%s %s NOT NULL DEFAULT '[]'", TagsColumn, d.dialect.ColumnType(TypeJSON)),
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.table, strings.Join(defs, ",\n  "))
}

func isSystemColumn(name string) bool {
	return name == CreatedAtColumn || name == UpdatedAtColumn || name == TagsColumn
}

// validIdentifier accepts plain SQL identifiers: a letter or underscore
// followed by letters, digits or underscores.
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Describe builds a Descriptor from the struct tags of T:
//
//	db:"column"                         column name (required, "-" skips)
//	store:"pk[,uuid]|create|update|readonly|softdelete|nullable"
//
// The struct must embed Meta (or otherwise map the three system columns).
// Embedded structs without a db tag are flattened.
func Describe[T any](table string, dialect Dialect) (*Descriptor, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("describe %s: %s is not a struct", table, t)
	}

	var fields []Field
	system := make(map[string]bool, 3)
	if err := collectFields(t, &fields, system); err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	for _, col := range []string{CreatedAtColumn, UpdatedAtColumn, TagsColumn} {
		if !system[col] {
			return nil, fmt.Errorf("describe %s: %s has no %s column (embed schema.Meta)", table, t, col)
		}
	}
	return New(table, dialect, fields...)
}

// MustDescribe is Describe that panics on error, for package-level
// descriptor variables.
func MustDescribe[T any](table string, dialect Dialect) *Descriptor {
	d, err := Describe[T](table, dialect)
	if err != nil {
		panic(err)
	}
	return d
}

func collectFields(t reflect.Type, fields *[]Field, system map[string]bool) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		col := sf.Tag.Get("db")
		if col == "-" {
			continue
		}
		if sf.Anonymous && col == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if ft == metaType {
					for _, c := range []string{CreatedAtColumn, UpdatedAtColumn, TagsColumn} {
						system[c] = true
					}
					continue
				}
				if err := collectFields(ft, fields, system); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() || col == "" {
			continue
		}
		if isSystemColumn(col) {
			system[col] = true
			continue
		}

		f := Field{Name: col, Type: inferType(sf.Type), Nullable: sf.Type.Kind() == reflect.Pointer}
		if err := parseFieldTag(&f, sf.Tag.Get("store")); err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
		*fields = append(*fields, f)
	}
	return nil
}
