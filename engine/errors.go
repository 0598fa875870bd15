package engine

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSaveFailed       = errors.New("failed to save config")
	ErrNothingGenerated = errors.New("nothing generated")
	ErrNoSinks          = errors.New("no export sinks running")
)
