// Package senml implements SenML packs (RFC 8428) in the CBOR and JSON
// representations used by LwM2M 1.1, with base-name resolution and the
// checks a server applies to Write, Write-Composite and Send payloads.
package senml
