// Package discovery advertises and browses LwM2M servers over mDNS/DNS-SD.
//
// The simulated server registers itself as _coap._udp, or _coaps._udp when
// the listener is secured. The TXT record carries the resource directory
// path and the role of the endpoint:
//
//	path=/rd   base path clients register under
//	role=rd    LwM2M server ("bs" for a bootstrap server)
//	ver=1.1    highest enabler version accepted (optional)
//
// Advertising is off unless enabled in the peer configuration.
package discovery
