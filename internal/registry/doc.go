// Package registry keeps named store engines for discovery and health
// checks. Engines are generic, so the typed handle is returned once by
// Register and kept by the caller; Get and Names expose metadata only.
package registry
