package coap

import (
	"fmt"
)

// Block size limits (RFC 7959). SZX 7 is reserved.
const (
	MinBlockSize = 16
	MaxBlockSize = 1024
	MaxSZX       = 6
	MaxBlockNum  = 1<<20 - 1
)

// Block is the value of a Block1 or Block2 option.
type Block struct {
	// Num is the block sequence number.
	Num uint32

	// More is set when further blocks follow.
	More bool

	// SZX is the size exponent: size = 2^(4+SZX).
	SZX uint8
}

// SZXForSize returns the size exponent for a block size. Only powers of
// two from 16 to 1024 are valid.
func SZXForSize(size int) (uint8, error) {
	for szx := uint8(0); szx <= MaxSZX; szx++ {
		if 1<<(4+szx) == size {
			return szx, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidBlockSize, size)
}

// NewBlock builds a block from a byte size.
func NewBlock(num uint32, more bool, size int) (Block, error) {
	szx, err := SZXForSize(size)
	if err != nil {
		return Block{}, err
	}
	if num > MaxBlockNum {
		return Block{}, fmt.Errorf("%w: block number %d", ErrBadOption, num)
	}
	return Block{Num: num, More: more, SZX: szx}, nil
}

// Size returns the block size in bytes.
func (b Block) Size() int {
	return 1 << (4 + b.SZX)
}

// Offset returns the byte offset of the block.
func (b Block) Offset() int {
	return int(b.Num) * b.Size()
}

// Resize returns the block that starts at the same offset with a smaller
// size. Growing is not lossless and returns the receiver unchanged.
func (b Block) Resize(szx uint8) Block {
	if szx >= b.SZX {
		return b
	}
	return Block{Num: uint32(b.Offset() >> (4 + szx)), More: b.More, SZX: szx}
}

// Encode packs the block as (num<<4)|(more<<3)|szx in minimal bytes.
func (b Block) Encode() []byte {
	v := uint64(b.Num)<<4 | uint64(b.SZX&0x07)
	if b.More {
		v |= 1 << 3
	}
	return encodeUint(v)
}

// Option returns the block as an option with the given number.
func (b Block) Option(n OptionNumber) Option {
	return Option{Number: n, Value: b.Encode()}
}

// String returns "num/more/size".
func (b Block) String() string {
	more := 0
	if b.More {
		more = 1
	}
	return fmt.Sprintf("%d/%d/%d", b.Num, more, b.Size())
}

// DecodeBlock parses a block option value. Values longer than 3 bytes and
// the reserved SZX 7 are rejected with ErrInvalidBlockSize.
func DecodeBlock(v []byte) (Block, error) {
	if len(v) > 3 {
		return Block{}, fmt.Errorf("%w: %d-byte block option", ErrInvalidBlockSize, len(v))
	}
	var n uint32
	for _, c := range v {
		n = n<<8 | uint32(c)
	}
	blk := Block{Num: n >> 4, More: n&0x08 != 0, SZX: uint8(n & 0x07)}
	if blk.SZX > MaxSZX {
		return blk, fmt.Errorf("%w: szx %d", ErrInvalidBlockSize, blk.SZX)
	}
	return blk, nil
}
