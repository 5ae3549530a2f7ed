// Package cache provides the look-aside cache used by the store engine.
//
// Keys are namespaced per table:
//
//	{prefix}:{table}:record:{id}   one cached record
//	{prefix}:{table}:query:{hash}  one cached query result
//
// Reads populate entries after a backend miss. Writes never update
// entries in place: they delete the affected record keys and every query
// key of the table.
//
// Client is the backend contract (RedisClient, MemoryClient); Manager
// adds the key scheme and CBOR value encoding on top.
package cache
