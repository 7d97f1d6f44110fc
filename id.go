package bitmapstore

import (
	"strings"

	"github.com/google/uuid"
)

// newID generates a random 128-bit identifier in canonical UUID form.
func newID() string {
	return uuid.NewString()
}

// validateID reports whether id can be used to name a payload file inside
// the storage directory. IDs are generated by the store, but index files can
// be edited by hand, so ids read from disk are checked before use.
func validateID(id string) error {
	if id == "" {
		return ErrInvalidID
	}

	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || strings.Contains(id, "\x00") {
		return ErrInvalidID
	}

	return nil
}
