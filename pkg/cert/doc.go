// Package cert provides X.509 credentials for DTLS certificate mode.
//
// It generates P-256 certificate authorities and end-entity certificates
// for tests and the lwm2m-peer CLI, reads and writes PEM files, and checks
// that a client certificate matches the endpoint name the client registers
// with.
package cert
