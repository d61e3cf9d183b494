package blockwise

import "errors"

var (
	// ErrBeyondEnd is returned when a Block2 request starts past the end of
	// the representation. The server answers it with a Reset.
	ErrBeyondEnd = errors.New("block beyond end of resource")

	errBusy = errors.New("block-wise transfer in progress")
)
