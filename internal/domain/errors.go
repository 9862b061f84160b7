package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrStaleCursor  = errors.New("cursor write not monotonic")
)
