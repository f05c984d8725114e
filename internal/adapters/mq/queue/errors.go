package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("change queue is full")
	ErrClosed = errors.New("change queue is closed")
)
