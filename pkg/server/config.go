package server

import (
	"log/slog"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/blockwise"
	"github.com/lwm2m-harness/lwm2m-go/pkg/cache"
	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/observe"
	"github.com/lwm2m-harness/lwm2m-go/pkg/persistence"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
)

// DefaultLocation is the Location-Path returned on Register.
var DefaultLocation = coap.Path{"rd", "demo"}

// Config configures a Server.
type Config struct {
	// Location is the registration location handed to the first client.
	Location coap.Path

	// UniqueLocations gives every endpoint name its own generated
	// location below /rd instead of Location.
	UniqueLocations bool

	// Role is recorded in protocol log events.
	Role log.Role

	// Params are the retransmission parameters for requests the server
	// sends and the lifetime of cached responses.
	Params transmission.Params

	// BlockSize is the initial Block2 size and the largest Block1 size
	// accepted (16..1024). Default 1024.
	BlockSize int

	// MaxBodySize bounds reassembled Block1 bodies. Default 4 MiB.
	MaxBodySize int

	// CacheSize bounds the response cache. Default 1024 entries.
	CacheSize int

	// MaxObservations bounds the observation table. Default 256.
	MaxObservations int

	// ConfirmableNotifications sends notifications as CON and waits for
	// their ACK. Default NON.
	ConfirmableNotifications bool

	// Store persists registrations after every change (optional).
	Store *persistence.Store

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives decoded message events (optional).
	ProtocolLogger log.Logger

	// IDs hands out message IDs and tokens (default NewIDGenerator with a
	// random start).
	IDs *coap.IDGenerator

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Location:        DefaultLocation,
		Params:          transmission.DefaultParams(),
		BlockSize:       coap.MaxBlockSize,
		MaxBodySize:     blockwise.DefaultMaxBodySize,
		CacheSize:       cache.DefaultMaxEntries,
		MaxObservations: observe.DefaultMaxObservations,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if len(c.Location) == 0 {
		c.Location = def.Location
	}
	if c.Params == (transmission.Params{}) {
		c.Params = def.Params
	}
	if c.BlockSize == 0 {
		c.BlockSize = def.BlockSize
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = def.MaxBodySize
	}
	if c.CacheSize == 0 {
		c.CacheSize = def.CacheSize
	}
	if c.MaxObservations == 0 {
		c.MaxObservations = def.MaxObservations
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
	if c.IDs == nil {
		c.IDs = coap.NewIDGenerator(coap.WithRandomStart())
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
