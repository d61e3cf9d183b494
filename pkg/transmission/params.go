package transmission

import (
	"errors"
	"fmt"
	"time"
)

// Default parameters from RFC 7252.
const (
	DefaultAckTimeout      = 2 * time.Second
	DefaultAckRandomFactor = 1.5
	DefaultMaxRetransmit   = 4
	DefaultNStart          = 1

	// MaxLatency is the assumed maximum one-way datagram latency.
	MaxLatency = 100 * time.Second
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid transmission parameters")

// Params are the configurable retransmission parameters.
type Params struct {
	// AckTimeout is the initial acknowledgement timeout.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// AckRandomFactor scales the initial timeout by a random value in
	// [1, AckRandomFactor]. Must be at least 1.
	AckRandomFactor float64 `yaml:"ack_random_factor"`

	// MaxRetransmit is the number of retransmissions before giving up.
	MaxRetransmit int `yaml:"max_retransmit"`

	// NStart is the number of simultaneous outstanding interactions.
	NStart int `yaml:"nstart"`
}

// DefaultParams returns the RFC 7252 defaults.
func DefaultParams() Params {
	return Params{
		AckTimeout:      DefaultAckTimeout,
		AckRandomFactor: DefaultAckRandomFactor,
		MaxRetransmit:   DefaultMaxRetransmit,
		NStart:          DefaultNStart,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.AckTimeout <= 0:
		return fmt.Errorf("%w: ack_timeout %v", ErrInvalidParams, p.AckTimeout)
	case p.AckRandomFactor < 1:
		return fmt.Errorf("%w: ack_random_factor %v < 1", ErrInvalidParams, p.AckRandomFactor)
	case p.MaxRetransmit < 0 || p.MaxRetransmit > 20:
		return fmt.Errorf("%w: max_retransmit %d", ErrInvalidParams, p.MaxRetransmit)
	case p.NStart < 1:
		return fmt.Errorf("%w: nstart %d", ErrInvalidParams, p.NStart)
	}
	return nil
}

func (p Params) scaled(exp int) time.Duration {
	return time.Duration(float64(p.AckTimeout) * float64(int64(1)<<exp-1) * p.AckRandomFactor)
}

// MaxTransmitSpan is the time from the first transmission of a
// confirmable message to its last retransmission.
func (p Params) MaxTransmitSpan() time.Duration {
	return p.scaled(p.MaxRetransmit)
}

// MaxTransmitWait is the time from the first transmission of a
// confirmable message to the moment the sender gives up.
func (p Params) MaxTransmitWait() time.Duration {
	return p.scaled(p.MaxRetransmit + 1)
}

// ProcessingDelay is the time a node takes to acknowledge a message.
func (p Params) ProcessingDelay() time.Duration {
	return p.AckTimeout
}

// ExchangeLifetime is how long a message ID and the cached response to
// it stay valid.
func (p Params) ExchangeLifetime() time.Duration {
	return p.MaxTransmitWait() + 2*MaxLatency + p.ProcessingDelay()
}

// NonLifetime is how long a non-confirmable message ID stays valid.
func (p Params) NonLifetime() time.Duration {
	return p.MaxTransmitSpan() + MaxLatency
}

func (p Params) String() string {
	return fmt.Sprintf("ack_timeout=%v ack_random_factor=%g max_retransmit=%d nstart=%d exchange_lifetime=%v",
		p.AckTimeout, p.AckRandomFactor, p.MaxRetransmit, p.NStart, p.ExchangeLifetime())
}
