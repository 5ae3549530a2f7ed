// Package store is the generic record engine: typed CRUD, filtered and
// aggregate queries, atomic bulk updates and deletes, soft delete and
// transactional batches over one table.
//
// An Engine[T, K] binds a record struct T with primary key type K to a
// schema.Descriptor and a DB. Every successful mutation invalidates the
// table's cache entries and emits a signal.Event on the configured bus.
// The *WithExecutor variants run inside a caller-owned transaction and
// leave both to the caller, who publishes after commit:
//
//	err := db.InTx(ctx, func(tx *sqlx.Tx) error {
//		updated, err = wallets.UpdateWhereWithExecutor(ctx, tx, q, ops)
//		return err
//	})
//	if err == nil {
//		wallets.PublishUpdate(ctx, updated)
//	}
//
// Errors are *StoreError values; use the Is*Error helpers to classify
// them and IsTransient to decide whether a retry might succeed.
package store
