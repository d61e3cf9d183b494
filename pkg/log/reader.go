package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero-valued fields match anything. The
// time window is half-open: [TimeStart, TimeEnd).
type Filter struct {
	ConnectionID string
	Endpoint     string
	Operation    string
	Direction    *Direction
	Layer        *Layer
	Category     *Category
	TimeStart    *time.Time
	TimeEnd      *time.Time
}

// IsZero returns true when the filter matches every event.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	switch {
	case f.ConnectionID != "" && e.ConnectionID != f.ConnectionID,
		f.Endpoint != "" && e.Endpoint != f.Endpoint,
		f.Direction != nil && e.Direction != *f.Direction,
		f.Layer != nil && e.Layer != *f.Layer,
		f.Category != nil && e.Category != *f.Category,
		f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Operation != "" {
		return e.Message != nil && e.Message.Operation == f.Operation
	}
	return true
}

// Reader streams events out of a capture, skipping those the filter rejects.
type Reader struct {
	src     io.Closer
	dec     *cbor.Decoder
	filter  Filter
	read    int
	skipped int
}

// NewReader opens a capture file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and applies filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(f, filter), nil
}

// NewStreamReader reads a capture from r. If r is an io.Closer, Close
// closes it.
func NewStreamReader(r io.Reader, filter Filter) *Reader {
	rd := &Reader{dec: NewDecoder(r), filter: filter}
	if c, ok := r.(io.Closer); ok {
		rd.src = c
	}
	return rd
}

// Next returns the next matching event, or io.EOF at the end of the
// capture. A capture cut off mid-event yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("event %d: %w", r.read+r.skipped+1, err)
		}
		if !r.filter.Match(e) {
			r.skipped++
			continue
		}
		r.read++
		return e, nil
	}
}

// Events iterates over the remaining matching events. Iteration stops
// after the first decode error, which is yielded once.
func (r *Reader) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			e, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Skipped returns how many events the filter has rejected so far.
func (r *Reader) Skipped() int { return r.skipped }

// Close releases the underlying source.
func (r *Reader) Close() error {
	if r.src == nil {
		return nil
	}
	return r.src.Close()
}
