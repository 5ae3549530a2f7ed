package query

import (
	"strconv"
	"strings"
)

// ShiftPlaceholders renumbers every positional placeholder $k in sql to
// $k+offset. Text inside single-quoted literals and double-quoted
// identifiers is left alone. Used when a compiled WHERE clause is
// appended after another parameter group, e.g. the SET clause of an
// UPDATE.
func ShiftPlaceholders(sql string, offset int) string {
	if offset == 0 || !strings.Contains(sql, "$") {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) + 8)

	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]

		if quote != 0 {
			b.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}

		switch {
		case ch == '\'' || ch == '"':
			quote = ch
			b.WriteByte(ch)
		case ch == '$' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			n, _ := strconv.Atoi(sql[i+1 : j])
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n + offset))
			i = j - 1
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// CountPlaceholders returns the number of distinct positional
// placeholders in sql, ignoring quoted text.
func CountPlaceholders(sql string) int {
	seen := make(map[int]struct{})
	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '$' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			n, _ := strconv.Atoi(sql[i+1 : j])
			seen[n] = struct{}{}
			i = j - 1
		}
	}
	return len(seen)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
