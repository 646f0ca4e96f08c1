// Package matchcode generates and validates the opaque join codes players
// share to meet in a match.
package matchcode

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet keeps codes easy to read out loud.
	Alphabet = "0123456789"
	// Length of 6 gives a million codes; collisions among concurrently
	// open matches are resolved by the store's unique constraint and a
	// regenerate-and-retry at the caller.
	Length = 6
)

// New returns a fresh join code.
func New() (string, error) {
	return gonanoid.Generate(Alphabet, Length)
}

// Valid reports whether s has the shape of a join code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
