package blockwise

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transmission"
)

// ETagLength is the length of generated ETags.
const ETagLength = 8

// SenderConfig configures a Sender.
type SenderConfig struct {
	// InitialSize is the block size of the first response and the largest
	// size a client may ask for later. Default 1024.
	InitialSize int

	// Lifetime is how long an idle transfer keeps its representation.
	Lifetime time.Duration

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

// Chunk is one Block2 response.
type Chunk struct {
	Payload []byte
	Block   coap.Block

	// ETag identifies the representation all chunks are cut from.
	ETag []byte

	// Size is the size of the whole representation.
	Size int
}

// Apply sets the payload, Block2, ETag and, on the first block, Size2 on
// resp.
func (c Chunk) Apply(resp *coap.Packet) {
	resp.Payload = c.Payload
	resp.Options.Set(c.Block.Option(coap.Block2))
	resp.Options.Set(coap.Option{Number: coap.ETag, Value: c.ETag})
	if c.Block.Num == 0 {
		resp.Options.SetUint(coap.Size2, uint64(c.Size))
	}
}

type representation struct {
	body    []byte
	etag    []byte
	updated time.Time

	// start and next bound the byte range of the last served block.
	start, next int
}

// Sender cuts response bodies into Block2 chunks.
type Sender struct {
	mu       sync.Mutex
	initSZX  uint8
	lifetime time.Duration
	now      func() time.Time
	active   map[transferKey]*representation
}

// NewSender creates a Sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.InitialSize == 0 {
		cfg.InitialSize = coap.MaxBlockSize
	}
	szx, err := coap.SZXForSize(cfg.InitialSize)
	if err != nil {
		return nil, err
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = transmission.DefaultParams().ExchangeLifetime()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sender{
		initSZX:  szx,
		lifetime: cfg.Lifetime,
		now:      cfg.Now,
		active:   make(map[transferKey]*representation),
	}, nil
}

// Serve returns the chunk req asks for. A request without Block2 starts
// the transfer of body at the initial size; later requests are served
// from the stored representation so every chunk shares one ETag. A
// request for a larger size than the initial one is 4.02. A block that
// starts past the end returns ErrBeyondEnd. Blocks must follow the last
// served one; a request may also start inside the last served block when
// the client shrinks the size. Any other block number is 4.08.
func (s *Sender) Serve(peer, resource string, body []byte, req *coap.Packet) (Chunk, error) {
	blk, ok, err := req.Options.Block2()
	if err != nil {
		return Chunk{}, coap.WrapCode(coap.BadOption, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)

	k := transferKey{peer: peer, id: resource}
	rep, exists := s.active[k]
	if !ok {
		blk = coap.Block{SZX: s.initSZX}
	}
	if !ok || !exists {
		rep = &representation{body: append([]byte(nil), body...), etag: ETag(body)}
		s.active[k] = rep
	}
	rep.updated = now

	if blk.SZX > s.initSZX {
		return Chunk{}, coap.NewCodeError(coap.BadOption,
			"block size %d exceeds %d", blk.Size(), 1<<(4+s.initSZX))
	}
	off := blk.Offset()
	if off >= len(rep.body) && off > 0 {
		return Chunk{}, fmt.Errorf("%w: block %s of %d bytes", ErrBeyondEnd, blk, len(rep.body))
	}
	if off != 0 && (off < rep.start || off > rep.next) {
		return Chunk{}, coap.NewCodeError(coap.RequestEntityIncomplete,
			"block %s out of sequence, expected offset %d", blk, rep.next)
	}
	end := min(off+blk.Size(), len(rep.body))
	blk.More = end < len(rep.body)
	rep.start, rep.next = off, end

	return Chunk{
		Payload: rep.body[off:end],
		Block:   blk,
		ETag:    rep.etag,
		Size:    len(rep.body),
	}, nil
}

// Finish drops the stored representation of resource for peer.
func (s *Sender) Finish(peer, resource string) {
	s.mu.Lock()
	delete(s.active, transferKey{peer: peer, id: resource})
	s.mu.Unlock()
}

// Purge drops every transfer of peer.
func (s *Sender) Purge(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.active {
		if k.peer == peer {
			delete(s.active, k)
		}
	}
}

// Active returns the number of stored representations.
func (s *Sender) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Sender) expireLocked(now time.Time) {
	for k, rep := range s.active {
		if now.Sub(rep.updated) > s.lifetime {
			delete(s.active, k)
		}
	}
}

// ETag derives a representation tag from body.
func ETag(body []byte) []byte {
	sum := sha256.Sum256(body)
	return bytes.Clone(sum[:ETagLength])
}

// Piece is one block of an outgoing Block1 request.
type Piece struct {
	Block   coap.Block
	Payload []byte
}

// Split cuts body into Block1 pieces of size bytes. An empty body gives a
// single empty piece.
func Split(body []byte, size int) ([]Piece, error) {
	szx, err := coap.SZXForSize(size)
	if err != nil {
		return nil, err
	}
	n := (len(body) + size - 1) / size
	if n == 0 {
		n = 1
	}
	if n-1 > coap.MaxBlockNum {
		return nil, fmt.Errorf("%w: %d bytes need %d blocks", coap.ErrInvalidBlockSize, len(body), n)
	}
	pieces := make([]Piece, 0, n)
	for i := 0; i < n; i++ {
		off := i * size
		end := min(off+size, len(body))
		pieces = append(pieces, Piece{
			Block:   coap.Block{Num: uint32(i), More: end < len(body), SZX: szx},
			Payload: body[off:end],
		})
	}
	return pieces, nil
}
