package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	ErrUnknownSource = errors.New("unknown source")
	ErrEmptyTaskID   = errors.New("backend returned an empty task id")
)
