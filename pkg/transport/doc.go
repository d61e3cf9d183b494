// Package transport provides the datagram peer the LwM2M test server talks
// through.
//
// A Peer owns exactly one UDP socket. It starts unconnected, learns its
// client from the first datagram (Listen) or connects out (Connect), and
// from then on exchanges whole datagrams with that client only.
//
// # Port-preserving re-bind
//
// Dropping the peer association of a connected datagram socket is not
// portable, so the peer instead
//
//  1. saves SO_REUSEADDR / SO_REUSEPORT of the current socket
//  2. sets both on the current socket
//  3. binds a fresh socket with both set to the same local address
//  4. closes the current socket
//  5. restores the saved flags on the fresh socket
//
// The local port never becomes free for another process.
//
// # Fake close
//
// FakeClose connects the socket to a port known to be unused. Datagrams the
// client keeps sending no longer match the socket, so the kernel answers
// them with ICMP Port Unreachable, while the local port stays reserved.
// FakeUnclose connects back to the remembered client.
//
// # DTLS
//
// DTLSPeer runs a DTLS 1.2 session (PSK or X.509) over the connected UDP
// socket and still exposes it for FakeClose and re-binding.
package transport
