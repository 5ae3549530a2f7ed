package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storehaus/internal/schema"
)

func TestParseDocumentSelect(t *testing.T) {
	doc, err := ParseDocument(strings.NewReader(`
table: users
where:
  - {field: age, op: gte, value: 18}
  - any:
      - {field: name, op: like, value: "A%"}
      - {field: email, op: is_null}
  - {field: id, op: in, value: [1, 2]}
  - tags_all: [vip, admin]
order_by:
  - {field: name, dir: desc}
limit: 10
offset: 5
`))
	require.NoError(t, err)
	assert.Equal(t, ModeSelect, doc.Mode)

	stmt, warnings, err := doc.Compile(schema.Postgres)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t,
		"SELECT * FROM users WHERE age >= $1 AND (name LIKE $2 OR email IS NULL) AND id IN ($3, $4) AND __tags__ ?& ARRAY[$5, $6] ORDER BY name DESC LIMIT 10 OFFSET 5",
		stmt.SQL)
	assert.Equal(t, []any{18, "A%", 1, 2, "vip", "admin"}, stmt.Params)
}

func TestParseDocumentUpdateInfersMode(t *testing.T) {
	doc, err := ParseDocumentBytes([]byte(`
table: accounts
soft_delete: is_active
where:
  - {field: id, op: eq, value: 7}
update:
  - {field: balance, op: increment, value: 100}
`))
	require.NoError(t, err)
	assert.Equal(t, ModeUpdate, doc.Mode)

	stmt, _, err := doc.Compile(schema.SQLite)
	require.NoError(t, err)
	assert.Equal(t,
		"UPDATE accounts SET balance = balance + $1, __updated_at__ = strftime('%Y-%m-%d %H:%M:%f','now') WHERE id = $2 AND is_active = TRUE RETURNING *",
		stmt.SQL)
	assert.Equal(t, []any{100, 7}, stmt.Params)
}

func TestParseDocumentAggregate(t *testing.T) {
	doc, err := ParseDocumentBytes([]byte(`
table: employees
select:
  - {field: department}
  - {func: count, alias: n}
  - {func: count distinct, field: city}
group_by: [department]
having:
  - {field: "COUNT(*)", op: gt, value: 2}
`))
	require.NoError(t, err)

	stmt, _, err := doc.Compile(schema.Postgres)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT department, COUNT(*) AS n, COUNT(DISTINCT city) FROM employees GROUP BY department HAVING COUNT(*) > $1",
		stmt.SQL)
	assert.Equal(t, []any{2}, stmt.Params)
}

func TestParseDocumentDeleteAndCount(t *testing.T) {
	doc, err := ParseDocumentBytes([]byte("table: sessions\nmode: delete\nprimary_key: token\nwhere:\n  - {field: expired, op: eq, value: true}\n"))
	require.NoError(t, err)
	stmt, _, err := doc.Compile(schema.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM sessions WHERE expired = $1 RETURNING token", stmt.SQL)

	doc.Mode = ModeCount
	stmt, _, err = doc.Compile(schema.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM sessions WHERE expired = $1", stmt.SQL)
	assert.Equal(t, []any{true}, stmt.Params)
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"empty", "", "empty query document"},
		{"no table", "limit: 1\n", "table is required"},
		{"unknown key", "table: t\nbogus: 1\n", "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocumentBytes([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDocumentFilterErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown op", "table: t\nwhere:\n  - {field: a, op: approx, value: 1}\n"},
		{"scalar for list op", "table: t\nwhere:\n  - {field: a, op: in, value: 1}\n"},
		{"no field", "table: t\nwhere:\n  - {op: eq, value: 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocumentBytes([]byte(tt.yaml))
			require.NoError(t, err)
			_, _, err = doc.Compile(schema.Postgres)
			require.Error(t, err)
		})
	}
}

func TestDocumentReportsDefects(t *testing.T) {
	doc, err := ParseDocumentBytes([]byte("table: t\nwhere:\n  - {field: a, op: gt}\n"))
	require.NoError(t, err)

	stmt, warnings, err := doc.Compile(schema.Postgres)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE 1=0", stmt.SQL)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "gt on a has no value")
}
