// Package value defines the typed payload values carried by database
// events.
//
// Event payloads are built from arbitrary entity structs, so the values
// are normalized into a small closed set of types (Null, Text, Int,
// Float, Bool, Time, Array, Record). Subscribers can type-switch on them
// without reflecting over driver-specific types, and Marshal produces a
// byte-stable JSON rendering with sorted keys.
package value
