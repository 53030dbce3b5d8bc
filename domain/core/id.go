package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new random (v4) identifier.
// Artifact filenames embed the first 8 characters, so the prefix must not be time-derived.
func NewID() ID {
	return ID(uuid.New().String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// Short returns the first n characters of the ID (or the whole ID if shorter).
func (id ID) Short(n int) string {
	if n <= 0 || len(id) <= n {
		return string(id)
	}
	return string(id[:n])
}

// Domain-specific ID types
type (
	ArtifactID ID
	JobID      ID
	ClientID   ID
)

// String conversions for domain IDs
func (id ArtifactID) String() string { return ID(id).String() }
func (id JobID) String() string      { return ID(id).String() }
func (id ClientID) String() string   { return ID(id).String() }

// NewClientID returns a fresh correlation token for a backend client.
func NewClientID() ClientID {
	return ClientID(NewID())
}

// ParseArtifactID parses a string into ArtifactID
func ParseArtifactID(s string) (ArtifactID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: artifact ID cannot be empty", ErrInvalidInput)
	}
	return ArtifactID(strings.TrimSpace(s)), nil
}
