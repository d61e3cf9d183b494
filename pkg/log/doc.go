// Package log provides protocol capture for the LwM2M test peer.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, CoAP, LwM2M).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	peer.SetLogger(log.NewSlogAdapter(slog.Default()))
//
//	// For test runs: write to binary file
//	fl, _ := log.NewFileLogger("/tmp/lwm2m-peer.clog")
//	peer.SetLogger(log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl))
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw datagrams (DatagramEvent)
//   - CoAP/LwM2M: Decoded messages (MessageEvent)
//   - Peer and registration state changes (StateChangeEvent)
//
// Empty ACKs, Resets and errors have dedicated event types.
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .clog extension.
// The lwm2m-log CLI tool provides viewing and filtering.
package log
