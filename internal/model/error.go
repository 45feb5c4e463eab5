package model

import "errors"

// Error definitions for the model package.
var (
	ErrNotFound        = errors.New("model artifact not found")
	ErrCorrupt         = errors.New("model artifact cannot be loaded")
	ErrUnresolved      = errors.New("failed to get model")
	ErrTrainerMismatch = errors.New("resolved model was produced by a different trainer")
	ErrInvalidKey      = errors.New("invalid model key")
)
