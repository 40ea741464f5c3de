package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// RAG pipeline errors
	ErrConfiguration = errors.New("configuration error")
	ErrRetrieval     = errors.New("context retrieval failed")
	ErrStream        = errors.New("completion stream failed")

	// Task runner errors
	ErrTaskNotReady = errors.New("task result not ready")
	ErrQueueFull    = errors.New("worker queue full")
)
