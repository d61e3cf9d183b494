// Package lwm2m is the typed layer above CoAP: LwM2M paths, recognition of
// LwM2M operations in CoAP packets, request constructors for the operations
// a server initiates, matching responses, CoRE link format and
// Write-Attributes parameters.
//
// Recognition walks an ordered list of (predicate, kind) pairs once. More
// specific variants come first, so an Observe is never reported as a Read
// and a Deregister is never reported as a data-model Delete.
package lwm2m
