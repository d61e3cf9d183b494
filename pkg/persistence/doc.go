// Package persistence provides the persisted state of the simulated LwM2M
// servers.
//
// The state (registered clients and bootstrap-provisioned server accounts)
// is an opaque, version-tagged CBOR blob. A blob written with another
// format version is rejected with ErrVersionMismatch instead of being
// partially decoded.
package persistence
