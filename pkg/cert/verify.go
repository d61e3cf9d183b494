package cert

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrCertExpired      = errors.New("certificate has expired")
	ErrCertNotYetValid  = errors.New("certificate is not yet valid")
	ErrInvalidChain     = errors.New("invalid certificate chain")
	ErrEndpointMismatch = errors.New("certificate does not match endpoint name")
)

// ParseChain decodes the DER certificates a peer presented, leaf first.
func ParseChain(raw [][]byte) ([]*x509.Certificate, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrInvalidCert)
	}
	chain := make([]*x509.Certificate, 0, len(raw))
	for i, der := range raw {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: chain[%d]: %v", ErrInvalidCert, i, err)
		}
		chain = append(chain, c)
	}
	return chain, nil
}

// VerifyClient checks the validity window of cert at now and, when roots
// is non-nil, that it chains to roots for client authentication.
func VerifyClient(cert *x509.Certificate, intermediates []*x509.Certificate, roots *x509.CertPool, now time.Time) error {
	switch {
	case cert == nil:
		return ErrInvalidCert
	case now.Before(cert.NotBefore):
		return fmt.Errorf("%w: until %s", ErrCertNotYetValid, cert.NotBefore.Format(time.RFC3339))
	case now.After(cert.NotAfter):
		return fmt.Errorf("%w: since %s", ErrCertExpired, cert.NotAfter.Format(time.RFC3339))
	case roots == nil:
		return nil
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: x509.NewCertPool(),
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	for _, c := range intermediates {
		opts.Intermediates.AddCert(c)
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChain, err)
	}
	return nil
}

// EndpointName returns the LwM2M endpoint name a certificate was issued
// for, which is its subject CommonName.
func EndpointName(cert *x509.Certificate) (string, error) {
	switch {
	case cert == nil:
		return "", ErrInvalidCert
	case cert.Subject.CommonName == "":
		return "", fmt.Errorf("%w: no CommonName", ErrInvalidCert)
	}
	return cert.Subject.CommonName, nil
}

// VerifyEndpoint checks that a client registering as endpoint presented a
// certificate issued for that name.
func VerifyEndpoint(cert *x509.Certificate, endpoint string) error {
	cn, err := EndpointName(cert)
	if err != nil {
		return err
	}
	if cn != endpoint {
		return fmt.Errorf("%w: %q != %q", ErrEndpointMismatch, cn, endpoint)
	}
	return nil
}

// Info summarizes a certificate for logs.
type Info struct {
	CommonName string
	Issuer     string
	NotBefore  time.Time
	NotAfter   time.Time
	IsCA       bool
	SKI        []byte
	AKI        []byte
}

// GetInfo summarizes cert. It returns nil for a nil certificate.
func GetInfo(cert *x509.Certificate) *Info {
	if cert == nil {
		return nil
	}
	return &Info{
		CommonName: cert.Subject.CommonName,
		Issuer:     cert.Issuer.CommonName,
		NotBefore:  cert.NotBefore,
		NotAfter:   cert.NotAfter,
		IsCA:       cert.IsCA,
		SKI:        cert.SubjectKeyId,
		AKI:        cert.AuthorityKeyId,
	}
}

// String returns "CN=<cn> issuer=<cn> ski=<hex> expires=<date>".
func (i *Info) String() string {
	return fmt.Sprintf("CN=%s issuer=%s ski=%s expires=%s",
		i.CommonName, i.Issuer, hex.EncodeToString(i.SKI), i.NotAfter.Format(time.DateOnly))
}
