package query

import (
	"fmt"

	"github.com/roach88/storehaus/internal/schema"
)

// activeCondition appends "<flag> = TRUE" to a WHERE fragment, or
// creates one. Top-level filters are AND-joined and groups are
// parenthesized, so plain concatenation keeps precedence intact.
func activeCondition(where, flag string) string {
	if flag == "" {
		return where
	}
	if where == "" {
		return fmt.Sprintf("WHERE %s = TRUE", flag)
	}
	return fmt.Sprintf("%s AND %s = TRUE", where, flag)
}

// UpdateWhere assembles a bulk UPDATE ... RETURNING * statement.
//
// set holds assignments whose placeholders are numbered from $1 and
// bound by setParams. where is a compiled "WHERE ..." fragment (or "")
// numbered from $1; its placeholders are shifted past the SET group so
// the returned params are setParams followed by whereParams. A non-empty
// activeFlag restricts the update to rows whose soft-delete flag is set.
func UpdateWhere(d schema.Dialect, table, set string, setParams []any, where string, whereParams []any, activeFlag string) (string, []any) {
	where = ShiftPlaceholders(where, len(setParams))
	where = activeCondition(where, activeFlag)

	sql := join(
		fmt.Sprintf("UPDATE %s SET %s, %s = %s", table, set, schema.UpdatedAtColumn, d.Now()),
		where,
		"RETURNING *",
	)

	params := make([]any, 0, len(setParams)+len(whereParams))
	params = append(params, setParams...)
	return sql, append(params, whereParams...)
}

// DeleteWhere assembles a bulk delete returning the primary keys of the
// affected rows, or returning nothing when pk is empty. With a
// soft-delete flag the rows are deactivated instead of removed, and
// already inactive rows are left alone.
func DeleteWhere(d schema.Dialect, table, where, pk, softDeleteFlag string) string {
	returning := ""
	if pk != "" {
		returning = "RETURNING " + pk
	}
	if softDeleteFlag != "" {
		return join(
			fmt.Sprintf("UPDATE %s SET %s = FALSE, %s = %s", table, softDeleteFlag, schema.UpdatedAtColumn, d.Now()),
			activeCondition(where, softDeleteFlag),
			returning,
		)
	}
	return join("DELETE FROM "+table, where, returning)
}
