package bitmapstore

import "time"

// Record contains metadata about a stored image.
// Records live in the index file, separate from the payloads, so that
// listing never touches the image files.
type Record struct {
	ID       string    `json:"id"`            // Generated identifier
	Name     string    `json:"name"`          // Caller supplied label, not validated
	StoredAt time.Time `json:"utcStoredTime"` // Creation time in UTC
	FilePath string    `json:"filePath"`      // Absolute path of the payload file
}
