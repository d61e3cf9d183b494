// Package observe tracks CoAP Observe (RFC 7641) relationships between the
// simulated server and a client.
//
// An observation is keyed by the remote endpoint and the request token. It
// records the observed LwM2M path, the Write-Attributes in effect and the
// Observe sequence state in both directions: the next number to put on an
// outgoing notification, and the last number seen on an incoming one.
//
// # Cancellation
//
// An observation ends when the observer sends Observe(1) with the same
// token, when a notification is answered with Reset (matched by message
// ID), or when a Confirmable notification exhausts its retransmissions.
// Observations do not survive a peer reset.
package observe
