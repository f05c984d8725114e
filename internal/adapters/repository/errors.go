package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("data source unavailable")
	ErrInvalidRow  = errors.New("invalid row")
)
