// Package config loads the YAML configuration of the lwm2m-peer CLI.
//
// Every field has a default, so an empty file (or no file) is a valid
// configuration: plain UDP on 127.0.0.1:5683, RFC 7252 retransmission
// parameters, 1024-byte blocks and registration location /rd/demo.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/cache"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/discovery"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAddress   = "127.0.0.1"
	DefaultBlockSize = 1024
	DefaultLocation  = "/rd/demo"
	DefaultLogLevel  = "info"
	DefaultInstance  = "lwm2m-harness"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// SecurityMode selects the transport security.
type SecurityMode string

const (
	SecurityNone SecurityMode = "none"
	SecurityPSK  SecurityMode = "psk"
	SecurityX509 SecurityMode = "x509"
)

// Config is the peer configuration file.
type Config struct {
	Listen       ListenConfig        `yaml:"listen"`
	Security     SecurityConfig      `yaml:"security"`
	Transmission transmission.Params `yaml:"transmission"`

	// BlockSize is the initial and maximum block size (16..1024).
	BlockSize int `yaml:"block_size"`

	// CacheSize bounds the response cache (entries).
	CacheSize int `yaml:"cache_size"`

	// Location is the registration location returned on Register.
	Location string `yaml:"location"`

	// FirmwareFile is served by Block2 at FirmwarePath when set.
	FirmwareFile string `yaml:"firmware_file"`
	FirmwarePath string `yaml:"firmware_path"`

	// StateFile persists registrations across runs when set.
	StateFile string `yaml:"state_file"`

	Discovery DiscoveryConfig `yaml:"discovery"`

	// ProtocolLog is the .clog capture file; empty disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// ListenConfig is the local socket.
type ListenConfig struct {
	Address string `yaml:"address"`
	// Port 0 selects the CoAP default for the security mode.
	Port int `yaml:"port"`
}

// SecurityConfig selects DTLS credentials.
type SecurityConfig struct {
	Mode SecurityMode `yaml:"mode"`

	PSKIdentity string `yaml:"psk_identity"`
	// PSKKey is hex; spaces, colons and 0x prefixes are accepted.
	PSKKey string `yaml:"psk_key"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// CAFile verifies client certificates when set.
	CAFile string `yaml:"ca_file"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// LegacyBootstrap allows the peer to open DTLS sessions as client.
	LegacyBootstrap bool `yaml:"legacy_bootstrap"`
}

// DiscoveryConfig controls DNS-SD advertisement.
type DiscoveryConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Instance  string         `yaml:"instance"`
	Interface string         `yaml:"interface"`
	Role      discovery.Role `yaml:"role"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:       ListenConfig{Address: DefaultAddress},
		Security:     SecurityConfig{Mode: SecurityNone},
		Transmission: transmission.DefaultParams(),
		BlockSize:    DefaultBlockSize,
		CacheSize:    cache.DefaultMaxEntries,
		Location:     DefaultLocation,
		FirmwarePath: "/fw",
		Discovery:    DiscoveryConfig{Instance: DefaultInstance, Role: discovery.RoleServer},
		LogLevel:     DefaultLogLevel,
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a configuration file. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and mode-specific requirements.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 0xFFFF {
		return fmt.Errorf("%w: listen.port %d", ErrInvalidConfig, c.Listen.Port)
	}
	if err := c.Transmission.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := coap.SZXForSize(c.BlockSize); err != nil {
		return fmt.Errorf("%w: block_size %d", ErrInvalidConfig, c.BlockSize)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("%w: cache_size %d", ErrInvalidConfig, c.CacheSize)
	}
	if !strings.HasPrefix(c.Location, "/") || len(coap.ParsePath(c.Location)) == 0 {
		return fmt.Errorf("%w: location %q", ErrInvalidConfig, c.Location)
	}
	if c.FirmwareFile != "" && !strings.HasPrefix(c.FirmwarePath, "/") {
		return fmt.Errorf("%w: firmware_path %q", ErrInvalidConfig, c.FirmwarePath)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Discovery.Enabled {
		if err := discovery.ValidateInstanceName(c.Discovery.Instance); err != nil {
			return fmt.Errorf("%w: discovery.instance: %v", ErrInvalidConfig, err)
		}
		if !c.Discovery.Role.Valid() {
			return fmt.Errorf("%w: discovery.role %q", ErrInvalidConfig, c.Discovery.Role)
		}
	}
	return c.Security.validate()
}

func (s *SecurityConfig) validate() error {
	switch s.Mode {
	case SecurityNone, "":
		if s.LegacyBootstrap {
			return fmt.Errorf("%w: legacy_bootstrap requires DTLS", ErrInvalidConfig)
		}
	case SecurityPSK:
		if s.PSKIdentity == "" {
			return fmt.Errorf("%w: psk mode needs psk_identity", ErrInvalidConfig)
		}
		key, err := coap.ParseHex(s.PSKKey)
		if err != nil || len(key) == 0 {
			return fmt.Errorf("%w: psk_key must be non-empty hex", ErrInvalidConfig)
		}
	case SecurityX509:
		if s.CertFile == "" || s.KeyFile == "" {
			return fmt.Errorf("%w: x509 mode needs cert_file and key_file", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: security.mode %q", ErrInvalidConfig, s.Mode)
	}
	if s.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: handshake_timeout %v", ErrInvalidConfig, s.HandshakeTimeout)
	}
	return nil
}

// Secure reports whether the listener uses DTLS.
func (c *Config) Secure() bool {
	return c.Security.Mode == SecurityPSK || c.Security.Mode == SecurityX509
}

// Port returns the configured port or the CoAP default for the mode.
func (c *Config) Port() int {
	if c.Listen.Port != 0 {
		return c.Listen.Port
	}
	if c.Secure() {
		return 5684
	}
	return 5683
}

// LocationPath returns Location as Uri-Path segments.
func (c *Config) LocationPath() coap.Path {
	return coap.ParsePath(c.Location)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
