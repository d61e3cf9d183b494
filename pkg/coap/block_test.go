package coap

import (
	"bytes"
	"errors"
	"testing"
)

func TestBlockEncode(t *testing.T) {
	tests := []struct {
		blk  Block
		want []byte
	}{
		{Block{Num: 0, More: false, SZX: 0}, nil},
		{Block{Num: 0, More: true, SZX: 6}, []byte{0x0e}},
		{Block{Num: 16, More: true, SZX: 1}, []byte{0x01, 0x09}},
		{Block{Num: 8, More: false, SZX: 6}, []byte{0x86}},
		{Block{Num: MaxBlockNum, More: true, SZX: 6}, []byte{0xff, 0xff, 0xfe}},
	}
	for _, tt := range tests {
		got := tt.blk.Encode()
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Encode(%s): got %x, want %x", tt.blk, got, tt.want)
		}
		back, err := DecodeBlock(got)
		if err != nil {
			t.Fatalf("DecodeBlock(%x): %v", got, err)
		}
		if back != tt.blk {
			t.Errorf("DecodeBlock(%x): got %s, want %s", got, back, tt.blk)
		}
	}
}

func TestBlockSizes(t *testing.T) {
	for szx := uint8(0); szx <= MaxSZX; szx++ {
		size := Block{SZX: szx}.Size()
		got, err := SZXForSize(size)
		if err != nil || got != szx {
			t.Errorf("SZXForSize(%d): got %d/%v, want %d", size, got, err, szx)
		}
		if size < MinBlockSize || size > MaxBlockSize {
			t.Errorf("size %d out of range", size)
		}
	}
	for _, size := range []int{0, 8, 100, 2048} {
		if _, err := SZXForSize(size); !errors.Is(err, ErrInvalidBlockSize) {
			t.Errorf("SZXForSize(%d): got %v, want ErrInvalidBlockSize", size, err)
		}
	}
}

func TestDecodeBlockReservedSZX(t *testing.T) {
	_, err := DecodeBlock([]byte{0x01, 0x07})
	if !errors.Is(err, ErrInvalidBlockSize) {
		t.Fatalf("got %v, want ErrInvalidBlockSize", err)
	}
	if code := CodeOf(err); code != BadOption {
		t.Errorf("CodeOf: got %s, want %s", code, BadOption)
	}
}

func TestBlockResize(t *testing.T) {
	blk := Block{Num: 1, More: true, SZX: 6}
	small := blk.Resize(1)
	if small.Num != 32 || small.Size() != 32 || small.Offset() != blk.Offset() {
		t.Errorf("Resize: got %s, want 32/1/32", small)
	}
	if grown := small.Resize(6); grown != small {
		t.Errorf("Resize to larger size: got %s, want unchanged", grown)
	}
}
