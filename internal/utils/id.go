package utils

import "github.com/google/uuid"

// NewID returns a random UUID string. Used for history request correlation.
func NewID() string {
	return uuid.NewString()
}

// NewConnID returns a short identifier for tagging a connection in logs.
func NewConnID() string {
	id := uuid.New()
	return id.String()[:8]
}
