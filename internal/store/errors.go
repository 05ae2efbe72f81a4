package store

import "errors"

var (
	ErrNotFound          = errors.New("store: run not found")
	ErrUnsupportedDriver = errors.New("store: unsupported database driver")
)
