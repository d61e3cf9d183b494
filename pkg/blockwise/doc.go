// Package blockwise keeps the state of RFC 7959 block-wise transfers on
// the server side of an LwM2M exchange.
//
// A Receiver reassembles request bodies sent with Block1 and tells the
// caller whether to answer 2.31 Continue, run the request, or replay an
// earlier answer. A Sender cuts response bodies into Block2 chunks,
// honoring size renegotiation by the client and keeping one ETag per
// representation.
//
// Transfers are keyed by the remote endpoint (its address string) and
// either the request token (Block1) or the resource identity (Block2).
// Idle transfers expire after the exchange lifetime.
package blockwise
