package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrStopped       = errors.New("service stopped")
	ErrInvalidChange = errors.New("invalid change")
	ErrInvalidLimit  = errors.New("invalid feed limit")
	ErrBackpressure  = errors.New("change queue is full")
)
