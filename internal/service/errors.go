package service

import "errors"

// Common service errors
var (
	ErrNameRequired    = errors.New("participant name is required")
	ErrSessionComplete = errors.New("all blocks are already rated")
	ErrUnknownVariant  = errors.New("rating does not belong to the current block")
)
