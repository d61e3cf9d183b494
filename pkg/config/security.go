package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/lwm2m-harness/lwm2m-go/pkg/cert"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// DTLS builds the transport configuration for the secure modes. It loads
// certificate files for x509 mode.
func (s *SecurityConfig) DTLS() (transport.DTLSConfig, error) {
	cfg := transport.DTLSConfig{
		HandshakeTimeout:     s.HandshakeTimeout,
		AllowLegacyBootstrap: s.LegacyBootstrap,
	}
	switch s.Mode {
	case SecurityPSK:
		key, err := coap.ParseHex(s.PSKKey)
		if err != nil {
			return cfg, fmt.Errorf("psk_key: %w", err)
		}
		cfg.PSKIdentity = []byte(s.PSKIdentity)
		cfg.PSKKey = key
	case SecurityX509:
		creds, err := cert.Load(s.CertFile, s.KeyFile)
		if err != nil {
			return cfg, err
		}
		cfg.Certificates = []tls.Certificate{creds.TLSCertificate()}
		if s.CAFile != "" {
			cas, err := cert.ReadCertFile(s.CAFile)
			if err != nil {
				return cfg, err
			}
			cfg.RootCAs = x509.NewCertPool()
			for _, ca := range cas {
				cfg.RootCAs.AddCert(ca)
			}
		}
	default:
		return cfg, fmt.Errorf("%w: security mode %q has no DTLS settings", ErrInvalidConfig, s.Mode)
	}
	return cfg, nil
}
