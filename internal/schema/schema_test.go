package schema

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	ID      int64   `db:"id" store:"pk"`
	Name    string  `db:"name" store:"create,update"`
	Email   *string `db:"email" store:"create,update"`
	Balance int64   `db:"balance" store:"create,update"`
	Active  bool    `db:"is_active" store:"softdelete"`
	Secret  string  `db:"-"`
	Meta
}

type document struct {
	ID    uuid.UUID `db:"id" store:"pk,uuid"`
	Title string    `db:"title" store:"create"`
	Meta
}

type bare struct {
	ID   int64  `db:"id" store:"pk"`
	Name string `db:"name" store:"create"`
}

func TestDescribeStaticSQL(t *testing.T) {
	d, err := Describe[account]("accounts", Postgres)
	require.NoError(t, err)

	assert.Equal(t, "accounts", d.TableName())
	assert.Equal(t, "id", d.PrimaryKeyField())
	assert.Equal(t, []string{"name", "email", "balance"}, d.CreateFields())
	assert.Equal(t, []string{"name", "email", "balance"}, d.UpdateFields())
	assert.True(t, d.SupportsSoftDelete())
	assert.Equal(t, "is_active", d.SoftDeleteField())

	assert.Equal(t,
		"INSERT INTO accounts (name, email, balance, __tags__, __created_at__, __updated_at__) VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING *",
		d.CreateSQL())
	assert.Equal(t,
		"UPDATE accounts SET name = $1, email = $2, balance = $3, __tags__ = $4, __updated_at__ = NOW() WHERE id = $5 RETURNING *",
		d.UpdateSQL())
	assert.Equal(t, "SELECT * FROM accounts WHERE is_active = TRUE ORDER BY __created_at__ DESC", d.ListAllSQL())
	assert.Equal(t, "SELECT * FROM accounts WHERE id = $1", d.GetByIDSQL())
	assert.Equal(t, "DELETE FROM accounts WHERE id = $1", d.DeleteByIDSQL())
	assert.Equal(t, "SELECT COUNT(*) AS total FROM accounts", d.CountAllSQL())
	assert.Equal(t, "SELECT * FROM accounts", d.SelectBaseSQL())
	assert.Equal(t, "SELECT COUNT(*) FROM accounts", d.CountBaseSQL())
	assert.Equal(t,
		[]string{"id", "name", "email", "balance", "is_active", "__created_at__", "__updated_at__", "__tags__"},
		d.Columns())
}

func TestDescribeUUIDKeyIsCreateField(t *testing.T) {
	d, err := Describe[document]("documents", SQLite)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "title"}, d.CreateFields())
	assert.Empty(t, d.UpdateFields())
	assert.Equal(t, TypeUUID, d.PrimaryKey().Type)
	assert.False(t, d.SupportsSoftDelete())
	assert.Equal(t, "SELECT * FROM documents ORDER BY __created_at__ DESC", d.ListAllSQL())
	assert.Contains(t, d.CreateSQL(), "strftime('%Y-%m-%d %H:%M:%f','now')")
}

func TestDescribeRequiresMeta(t *testing.T) {
	_, err := Describe[bare]("bare", SQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed schema.Meta")
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		fields []Field
		errMsg string
	}{
		{
			name:   "bad table name",
			table:  "users; DROP",
			fields: []Field{{Name: "a", Create: true}},
			errMsg: "invalid table name",
		},
		{
			name:   "reserved column",
			table:  "t",
			fields: []Field{{Name: TagsColumn, Create: true}},
			errMsg: "reserved",
		},
		{
			name:   "duplicate column",
			table:  "t",
			fields: []Field{{Name: "a", Create: true}, {Name: "a"}},
			errMsg: "duplicate column",
		},
		{
			name:   "two keys",
			table:  "t",
			fields: []Field{{Name: "a", PrimaryKey: true}, {Name: "b", PrimaryKey: true, Create: true}},
			errMsg: "multiple primary keys",
		},
		{
			name:   "updatable key",
			table:  "t",
			fields: []Field{{Name: "a", PrimaryKey: true, Update: true, Create: true}},
			errMsg: "cannot be an update field",
		},
		{
			name:   "non-bool soft delete",
			table:  "t",
			fields: []Field{{Name: "a", Create: true}, {Name: "gone", Type: TypeText, SoftDelete: true}},
			errMsg: "must be boolean",
		},
		{
			name:   "readonly create",
			table:  "t",
			fields: []Field{{Name: "a", Create: true, ReadOnly: true}},
			errMsg: "readonly",
		},
		{
			name:   "no create fields",
			table:  "t",
			fields: []Field{{Name: "a", PrimaryKey: true}},
			errMsg: "no create fields",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.table, SQLite, tt.fields...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestTableWithoutPrimaryKey(t *testing.T) {
	d, err := New("events", SQLite, Field{Name: "kind", Create: true})
	require.NoError(t, err)

	assert.Equal(t, "", d.PrimaryKeyField())
	assert.Empty(t, d.UpdateSQL())
	assert.Empty(t, d.GetByIDSQL())
	assert.Empty(t, d.DeleteByIDSQL())
}

func TestCreateTableSQL(t *testing.T) {
	d, err := Describe[account]("accounts", SQLite)
	require.NoError(t, err)

	ddl := d.CreateTableSQL()
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS accounts (")
	assert.Contains(t, ddl, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	assert.Contains(t, ddl, "email TEXT,")
	assert.Contains(t, ddl, "balance INTEGER NOT NULL")
	assert.Contains(t, ddl, "is_active BOOLEAN NOT NULL DEFAULT TRUE")
	assert.Contains(t, ddl, "__created_at__ TIMESTAMP NOT NULL")
	assert.Contains(t, ddl, "__tags__ TEXT NOT NULL DEFAULT '[]'")

	pg, err := Describe[document]("documents", Postgres)
	require.NoError(t, err)
	assert.Contains(t, pg.CreateTableSQL(), "id UUID PRIMARY KEY")
	assert.Contains(t, pg.CreateTableSQL(), "__tags__ JSONB NOT NULL DEFAULT '[]'")
}

func TestNormalizeTags(t *testing.T) {
	decomposed := "e\u0301"
	got := NormalizeTags([]string{" vip ", decomposed, "", "vip", "\u00e9", "new"})
	assert.Equal(t, Tags{"vip", "\u00e9", "new"}, got)
}

func TestTagsMergeAndHas(t *testing.T) {
	tags := Tags{"a", "b"}.Merge("b", "c")
	assert.Equal(t, Tags{"a", "b", "c"}, tags)
	assert.True(t, tags.Has(" c "))
	assert.False(t, tags.Has("d"))
}

func TestTagsValueScan(t *testing.T) {
	v, err := Tags{"x", "y"}.Value()
	require.NoError(t, err)
	assert.Equal(t, driver.Value(`["x","y"]`), v)

	v, err = Tags(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, driver.Value("[]"), v)

	var tags Tags
	require.NoError(t, tags.Scan([]byte(`["x","x","y"]`)))
	assert.Equal(t, Tags{"x", "y"}, tags)

	require.NoError(t, tags.Scan(nil))
	assert.Equal(t, Tags{}, tags)

	require.Error(t, tags.Scan(42))
}

func TestTimestampScan(t *testing.T) {
	want := time.Date(2024, 3, 4, 5, 6, 7, 123000000, time.UTC)

	inputs := []any{
		want,
		"2024-03-04 05:06:07.123",
		"2024-03-04T05:06:07.123Z",
		[]byte("2024-03-04 05:06:07.123+00:00"),
	}
	for _, in := range inputs {
		var ts Timestamp
		require.NoError(t, ts.Scan(in), "input %v", in)
		assert.True(t, want.Equal(ts.Time), "input %v got %v", in, ts.Time)
		assert.Equal(t, time.UTC, ts.Location())
	}

	var ts Timestamp
	require.Error(t, ts.Scan("yesterday"))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, "pgx", d.DriverName())

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	assert.Equal(t, "sqlite3", d.DriverName())

	_, err = ParseDialect("oracle")
	require.Error(t, err)
}

func TestDialectFragments(t *testing.T) {
	limit, offset := 10, 20

	assert.Equal(t, "LIMIT 10 OFFSET 20", SQLite.LimitOffset(&limit, &offset))
	assert.Equal(t, "LIMIT -1 OFFSET 20", SQLite.LimitOffset(nil, &offset))
	assert.Equal(t, "OFFSET 20", Postgres.LimitOffset(nil, &offset))
	assert.Equal(t, "", Postgres.LimitOffset(nil, nil))

	assert.Equal(t, "name ILIKE $1", Postgres.ILike("name", "$1"))
	assert.Equal(t, "LOWER(name) LIKE LOWER($1)", SQLite.ILike("name", "$1"))

	assert.Equal(t, "__tags__ ?| ARRAY[$1, $2]", Postgres.Overlap("__tags__", []string{"$1", "$2"}))
	assert.Equal(t, "__tags__ ?& ARRAY[$1]", Postgres.ContainsAll("__tags__", []string{"$1"}))
	assert.Equal(t,
		"(SELECT COUNT(DISTINCT json_each.value) FROM json_each(__tags__) WHERE json_each.value IN ($1, $2)) = 2",
		SQLite.ContainsAll("__tags__", []string{"$1", "$2"}))
}
