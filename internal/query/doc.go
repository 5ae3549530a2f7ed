// Package query compiles declarative query descriptions into
// parameterized SQL.
//
// A Query holds filter trees (Condition leaves and AND/OR Groups),
// joins, GROUP BY/HAVING, ordering, paging, a select list and optional
// atomic update operations. Build turns it into SQL fragments plus an
// ordered parameter list: the Nth parameter binds to the Nth $N
// placeholder, values are appended in the order predicates are visited
// (depth-first), and HAVING continues the WHERE sequence.
//
// All values are bound, never interpolated. LIMIT and OFFSET are the
// only literals. The package does no I/O and is safe for concurrent use.
//
// Malformed leaves (a comparison without a value) compile to an
// always-false predicate; Validate reports them so callers can treat
// them as defects.
package query
