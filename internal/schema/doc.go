// Package schema describes record types to the store engine.
//
// A Descriptor is the explicit, validated description of one table: its
// columns, which of them are the primary key, create-able, update-able,
// read-only or the soft-delete flag, and the static SQL text the engine
// executes for create/update/list/get/delete/count. Descriptors are
// built once per record type, either field by field with New or from
// struct tags with Describe.
//
// Every table also carries the system columns __created_at__,
// __updated_at__ and __tags__, which record structs obtain by embedding
// Meta.
package schema
