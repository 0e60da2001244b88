package store

import "errors"

var (
	ErrDuplicate = errors.New("duplicate key")
	ErrNotFound  = errors.New("not found")
)
