// Package server implements the simulated LwM2M server the harness drives.
//
// A Server owns one transport peer and the per-peer protocol state: the
// response cache for duplicate detection, the Block1 receiver, the Block2
// sender and the observation table. It runs serially. ServeOne receives
// one datagram, answers it and returns, and there are no background
// goroutines; callers that need a loop call ServeOne repeatedly.
//
// Client-initiated operations are answered automatically:
//
//	Register          2.01 Created, Location-Path from Config.Location
//	Update            2.04 Changed (4.04 for an unknown location)
//	De-register       2.02 Deleted (4.04 for an unknown location)
//	Bootstrap-Request 2.04 Changed
//	Send              2.04 Changed after the SenML payload decodes
//	GET of a hosted resource   2.05, block-wise when larger than a block
//	Block1 uploads    2.31 Continue per block, then the reassembled request
//
// Server-initiated operations (Read, Write, Observe, ...) are sent with
// Request, which retransmits per the transmission parameters.
package server
