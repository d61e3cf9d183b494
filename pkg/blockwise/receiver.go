package blockwise

import (
	"bytes"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
)

// DefaultMaxBodySize bounds a reassembled Block1 body.
const DefaultMaxBodySize = 4 << 20

// Status tells the caller how to answer a Block1 request.
type Status uint8

const (
	// StatusContinue means more blocks are expected: answer 2.31 Continue
	// with Result.Block.
	StatusContinue Status = iota

	// StatusComplete means Result.Body holds the whole request body.
	StatusComplete

	// StatusReplay means the block was already received: answer as before.
	StatusReplay
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "CONTINUE"
	case StatusComplete:
		return "COMPLETE"
	case StatusReplay:
		return "REPLAY"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of Receiver.Receive.
type Result struct {
	Status Status

	// Block is the Block1 option to echo in the response. It is zero for
	// requests that carried no Block1 option.
	Block coap.Block

	// HasBlock is set when the request carried Block1.
	HasBlock bool

	// Body is the reassembled body (StatusComplete only).
	Body []byte
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// MaxSize caps the block size the server accepts. Larger client blocks
	// are acknowledged with this size. Default 1024.
	MaxSize int

	// MaxBodySize bounds the reassembled body. Default 4 MiB.
	MaxBodySize int

	// Lifetime is how long an idle assembly is kept. Default
	// EXCHANGE_LIFETIME of the default transmission parameters.
	Lifetime time.Duration

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

type transferKey struct {
	peer string
	id   string
}

type assembly struct {
	body        []byte
	last        coap.Block
	lastPayload []byte
	echo        coap.Block
	updated     time.Time
}

// Receiver reassembles Block1 request bodies.
type Receiver struct {
	mu       sync.Mutex
	maxSZX   uint8
	maxBody  int
	lifetime time.Duration
	now      func() time.Time
	pending  map[transferKey]*assembly
}

// NewReceiver creates a Receiver.
func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = coap.MaxBlockSize
	}
	szx, err := coap.SZXForSize(cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = transmission.DefaultParams().ExchangeLifetime()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Receiver{
		maxSZX:   szx,
		maxBody:  cfg.MaxBodySize,
		lifetime: cfg.Lifetime,
		now:      cfg.Now,
		pending:  make(map[transferKey]*assembly),
	}, nil
}

// Receive feeds one request from peer into its assembly. Requests without
// Block1 complete immediately with their payload. A repeated block whose
// bytes match what was stored is a StatusReplay. Sequencing violations
// return a *coap.CodeError: 4.08 for a missing start or a wrong offset,
// 4.13 for an oversized body, 4.02 for a malformed Block1 option.
func (r *Receiver) Receive(peer string, req *coap.Packet) (Result, error) {
	blk, ok, err := req.Options.Block1()
	if err != nil {
		return Result{}, coap.WrapCode(coap.BadOption, err)
	}
	if !ok {
		return Result{Status: StatusComplete, Body: req.Payload}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expireLocked(now)

	k := transferKey{peer: peer, id: string(req.Token)}
	a, exists := r.pending[k]

	if exists && a.last == blk && bytes.Equal(a.lastPayload, req.Payload) {
		a.updated = now
		return Result{Status: StatusReplay, Block: a.echo, HasBlock: true}, nil
	}

	if exists && blk.Num > 0 && blk.More {
		// A late duplicate of an earlier block is acknowledged again.
		off, end := blk.Offset(), blk.Offset()+len(req.Payload)
		if end < len(a.body) && bytes.Equal(a.body[off:end], req.Payload) {
			a.updated = now
			return Result{Status: StatusReplay, Block: r.capped(blk), HasBlock: true}, nil
		}
	}

	if blk.Num == 0 {
		// A fresh start discards whatever was stored under the token.
		a = &assembly{}
		r.pending[k] = a
	} else if !exists {
		return Result{}, coap.NewCodeError(coap.RequestEntityIncomplete,
			"block %s without a preceding block 0", blk)
	}

	if off := blk.Offset(); off != len(a.body) {
		delete(r.pending, k)
		return Result{}, coap.NewCodeError(coap.RequestEntityIncomplete,
			"block %s at offset %d, expected %d", blk, off, len(a.body))
	}
	if blk.More && len(req.Payload) != blk.Size() {
		delete(r.pending, k)
		return Result{}, coap.NewCodeError(coap.BadRequest,
			"non-final block %s carries %d bytes", blk, len(req.Payload))
	}
	if len(req.Payload) > blk.Size() {
		delete(r.pending, k)
		return Result{}, coap.NewCodeError(coap.BadRequest,
			"block %s carries %d bytes", blk, len(req.Payload))
	}
	if len(a.body)+len(req.Payload) > r.maxBody {
		delete(r.pending, k)
		return Result{}, coap.NewCodeError(coap.RequestEntityTooLarge,
			"body exceeds %d bytes", r.maxBody)
	}

	a.body = append(a.body, req.Payload...)
	a.last = blk
	a.lastPayload = append([]byte(nil), req.Payload...)
	a.updated = now

	echo := r.capped(blk)
	a.echo = echo

	if blk.More {
		return Result{Status: StatusContinue, Block: echo, HasBlock: true}, nil
	}
	delete(r.pending, k)
	return Result{Status: StatusComplete, Block: echo, HasBlock: true, Body: a.body}, nil
}

// capped returns blk with its size reduced to the receiver maximum.
func (r *Receiver) capped(blk coap.Block) coap.Block {
	if blk.SZX > r.maxSZX {
		blk.SZX = r.maxSZX
	}
	return blk
}

// Busy returns a 5.03 *coap.CodeError with a Max-Age hint if peer has a
// Block1 transfer in progress under a token other than token.
func (r *Receiver) Busy(peer string, token []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expireLocked(now)
	for k, a := range r.pending {
		if k.peer != peer || k.id == string(token) {
			continue
		}
		wait := a.updated.Add(r.lifetime).Sub(now)
		if wait < time.Second {
			wait = time.Second
		}
		return &coap.CodeError{
			Code:   coap.ServiceUnavailable,
			MaxAge: wait.Truncate(time.Second),
			Err:    errBusy,
		}
	}
	return nil
}

// Abort drops the assembly for (peer, token).
func (r *Receiver) Abort(peer string, token []byte) {
	r.mu.Lock()
	delete(r.pending, transferKey{peer: peer, id: string(token)})
	r.mu.Unlock()
}

// Purge drops every assembly of peer.
func (r *Receiver) Purge(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.pending {
		if k.peer == peer {
			delete(r.pending, k)
		}
	}
}

// Pending returns the number of assemblies in progress.
func (r *Receiver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Receiver) expireLocked(now time.Time) {
	for k, a := range r.pending {
		if now.Sub(a.updated) > r.lifetime {
			delete(r.pending, k)
		}
	}
}
