package discovery

import (
	"errors"
	"time"
)

// Service types.
const (
	ServiceTypeCoAP  = "_coap._udp"
	ServiceTypeCoAPS = "_coaps._udp"
	Domain           = "local."
)

// Defaults.
const (
	DefaultTTL         = 120 * time.Second
	DefaultPath        = "/rd"
	BrowseTimeout      = 10 * time.Second
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyPath    = "path"
	TXTKeyRole    = "role"
	TXTKeyVersion = "ver"
)

// Role tells what kind of LwM2M server an instance is.
type Role string

const (
	RoleServer    Role = "rd"
	RoleBootstrap Role = "bs"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleServer || r == RoleBootstrap
}

// ServiceType returns the DNS-SD service type for a secured or plain listener.
func ServiceType(secure bool) string {
	if secure {
		return ServiceTypeCoAPS
	}
	return ServiceTypeCoAP
}

// ServerInfo describes the server being advertised.
type ServerInfo struct {
	// Instance is the DNS-SD instance name.
	Instance string
	Port     int
	Secure   bool
	Role     Role
	// Path defaults to /rd.
	Path    string
	Version string
}

// Service is a server found while browsing.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	Secure    bool
	Role      Role
	Path      string
	Version   string
}

var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrInvalidPort         = errors.New("invalid port")
	ErrNotFound            = errors.New("service not found")
	ErrAlreadyExists       = errors.New("service already exists")
)
