package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// DefaultValidity is the validity of generated certificates.
const DefaultValidity = 365 * 24 * time.Hour

// ErrInvalidCert is returned for missing or unusable certificates.
var ErrInvalidCert = errors.New("invalid certificate")

// Credentials is a certificate chain with the leaf's private key.
type Credentials struct {
	// Chain holds the leaf first, then any intermediates.
	Chain []*x509.Certificate

	PrivateKey *ecdsa.PrivateKey
}

// Leaf returns the end-entity certificate.
func (c *Credentials) Leaf() *x509.Certificate {
	if len(c.Chain) == 0 {
		return nil
	}
	return c.Chain[0]
}

// TLSCertificate converts the credentials for use with a DTLS config.
func (c *Credentials) TLSCertificate() tls.Certificate {
	out := tls.Certificate{PrivateKey: c.PrivateKey, Leaf: c.Leaf()}
	for _, cert := range c.Chain {
		out.Certificate = append(out.Certificate, cert.Raw)
	}
	return out
}

// Pool returns a pool holding the leaf, for trusting a self-signed peer.
func (c *Credentials) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	if leaf := c.Leaf(); leaf != nil {
		pool.AddCert(leaf)
	}
	return pool
}

// Save writes the chain and key to PEM files.
func (c *Credentials) Save(certPath, keyPath string) error {
	if err := WriteCertFile(certPath, c.Chain...); err != nil {
		return err
	}
	return WriteKeyFile(keyPath, c.PrivateKey)
}

// Load reads credentials written by Save.
func Load(certPath, keyPath string) (*Credentials, error) {
	chain, err := ReadCertFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", certPath, err)
	}
	key, err := ReadKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", keyPath, err)
	}
	if !key.PublicKey.Equal(chain[0].PublicKey) {
		return nil, fmt.Errorf("%w: key does not match %s", ErrInvalidCert, certPath)
	}
	return &Credentials{Chain: chain, PrivateKey: key}, nil
}

// GenerateCA creates a self-signed P-256 certificate authority.
func GenerateCA(commonName string, validity time.Duration) (*Credentials, error) {
	tmpl, key, err := template(commonName, validity)
	if err != nil {
		return nil, err
	}
	tmpl.IsCA = true
	tmpl.BasicConstraintsValid = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature
	return sign(tmpl, tmpl, key, key)
}

// GenerateSelfSigned creates a self-signed P-256 end-entity certificate
// usable by either side of a DTLS handshake. commonName is also added as a
// DNS name.
func GenerateSelfSigned(commonName string, validity time.Duration) (*Credentials, error) {
	tmpl, key, err := template(commonName, validity)
	if err != nil {
		return nil, err
	}
	return sign(tmpl, tmpl, key, key)
}

// Issue creates an end-entity certificate for commonName signed by ca.
// For LwM2M clients commonName is the endpoint name.
func (c *Credentials) Issue(commonName string, validity time.Duration) (*Credentials, error) {
	if c.Leaf() == nil || !c.Leaf().IsCA {
		return nil, fmt.Errorf("%w: issuer is not a CA", ErrInvalidCert)
	}
	tmpl, key, err := template(commonName, validity)
	if err != nil {
		return nil, err
	}
	issued, err := sign(tmpl, c.Leaf(), key, c.PrivateKey)
	if err != nil {
		return nil, err
	}
	issued.Chain = append(issued.Chain, c.Chain...)
	return issued, nil
}

func template(commonName string, validity time.Duration) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, nil, err
	}
	ski, err := subjectKeyID(&key.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	return &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		SubjectKeyId: ski,
	}, key, nil
}

func sign(tmpl, parent *x509.Certificate, key, parentKey *ecdsa.PrivateKey) (*Credentials, error) {
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Credentials{Chain: []*x509.Certificate{c}, PrivateKey: key}, nil
}

// subjectKeyID is the SHA-1 of the marshalled public key (RFC 5280 method 1).
func subjectKeyID(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(der)
	return sum[:], nil
}
