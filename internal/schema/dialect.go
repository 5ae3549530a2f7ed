package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavor emitted by the descriptor and the query
// builder. Both dialects use PostgreSQL-style $N placeholders: SQLite
// accepts them as numbered parameters.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect converts a configuration string into a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", s)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// Placeholder renders the nth (1-based) positional placeholder.
func (d Dialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// Now renders the current-timestamp expression used for the system
// timestamp columns. The value is stable within one statement, so a fresh
// row gets identical creation and update timestamps.
func (d Dialect) Now() string {
	if d == Postgres {
		return "NOW()"
	}
	return "strftime('%Y-%m-%d %H:%M:%f','now')"
}

// ILike renders a case-insensitive LIKE.
func (d Dialect) ILike(field, placeholder string) string {
	if d == Postgres {
		return fmt.Sprintf("%s ILIKE %s", field, placeholder)
	}
	return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", field, placeholder)
}

// Overlap renders "the JSON array column shares at least one element
// with the given values".
func (d Dialect) Overlap(field string, placeholders []string) string {
	list := strings.Join(placeholders, ", ")
	if d == Postgres {
		return fmt.Sprintf("%s ?| ARRAY[%s]", field, list)
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE json_each.value IN (%s))", field, list)
}

// ContainsAll renders "the JSON array column contains every one of the
// given values". Callers must pass distinct values: the SQLite form
// compares a distinct match count against len(placeholders).
func (d Dialect) ContainsAll(field string, placeholders []string) string {
	list := strings.Join(placeholders, ", ")
	if d == Postgres {
		return fmt.Sprintf("%s ?& ARRAY[%s]", field, list)
	}
	return fmt.Sprintf("(SELECT COUNT(DISTINCT json_each.value) FROM json_each(%s) WHERE json_each.value IN (%s)) = %d",
		field, list, len(placeholders))
}

// LimitOffset renders the paging clause. Limit and offset are literals,
// never parameters. Returns "" when neither is set.
func (d Dialect) LimitOffset(limit, offset *int) string {
	switch {
	case limit != nil && offset != nil:
		return fmt.Sprintf("LIMIT %d OFFSET %d", *limit, *offset)
	case limit != nil:
		return fmt.Sprintf("LIMIT %d", *limit)
	case offset != nil:
		if d == SQLite {
			// SQLite has no bare OFFSET.
			return fmt.Sprintf("LIMIT -1 OFFSET %d", *offset)
		}
		return fmt.Sprintf("OFFSET %d", *offset)
	}
	return ""
}

// ColumnType maps a field type onto the dialect's column type.
func (d Dialect) ColumnType(t FieldType) string {
	pg := d == Postgres
	switch t {
	case TypeInteger:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case TypeReal:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTimestamp:
		if pg {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	case TypeUUID:
		if pg {
			return "UUID"
		}
		return "TEXT"
	case TypeJSON:
		if pg {
			return "JSONB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// SerialPrimaryKey renders the column definition for a database-generated
// integer primary key.
func (d Dialect) SerialPrimaryKey() string {
	if d == Postgres {
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}
