// Package signal is the in-process event bus that notifies subscribers of
// committed create, update and delete mutations.
//
// CALLBACK LIFECYCLE:
//
// Every Emit invokes each registered callback concurrently, bounded by
// Config.CallbackTimeout. Success resets the callback's consecutive
// failure counter. An error, panic or timeout increments it, and with
// RemoveFailingCallbacks set the callback is evicted once the counter
// reaches MaxConsecutiveFailures. Evicted ids are never reused.
//
// A periodic sweep (Start) removes callbacks that were never invoked and
// are older than InactiveCallbackThreshold.
//
// Failures are isolated: they are reported to the error handler (or the
// log) and never returned to whoever emitted the event.
package signal
