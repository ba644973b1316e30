// ABOUTME: Short URL-safe identifier generation for runs and events
// ABOUTME: Wraps nanoid with domain prefixes so IDs are self-describing in logs

package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the character set for the random portion of every ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
const Length = 12

// NewRunID returns an identifier for an execution run (run-xxxxxxxxxxxx).
func NewRunID() (string, error) {
	return generate("run-")
}

// NewEventID returns an identifier for a published event (evt-xxxxxxxxxxxx).
func NewEventID() (string, error) {
	return generate("evt-")
}

// NewRequestID returns a correlation identifier for an inbound request.
func NewRequestID() (string, error) {
	return generate("req-")
}

func generate(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustRequestID is NewRequestID for call sites that cannot return an error;
// nanoid only fails when the system entropy source is broken.
func MustRequestID() string {
	id, err := NewRequestID()
	if err != nil {
		panic(err)
	}
	return id
}
