// Package transmission holds the CoAP message-layer timing parameters
// (RFC 7252 section 4.8), the retransmission schedule derived from them,
// and a confirmable request/response exchange driven over a datagram
// connection.
//
// Derived values:
//
//	MAX_TRANSMIT_SPAN = ACK_TIMEOUT * (2^MAX_RETRANSMIT - 1) * ACK_RANDOM_FACTOR
//	MAX_TRANSMIT_WAIT = ACK_TIMEOUT * (2^(MAX_RETRANSMIT+1) - 1) * ACK_RANDOM_FACTOR
//	EXCHANGE_LIFETIME = MAX_TRANSMIT_WAIT + 2 * MAX_LATENCY + PROCESSING_DELAY
package transmission
