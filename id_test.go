package bitmapstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := newID()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.Equal(t, id, parsed.String())
	assert.NoError(t, validateID(id))
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := newID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"uuid", "3f2b8c1e-6a4d-4e2f-9b1a-0c5d7e8f9a0b", nil},
		{"hand written", "holiday-2024", nil},
		{"empty", "", ErrInvalidID},
		{"slash", "a/b", ErrInvalidID},
		{"backslash", `a\b`, ErrInvalidID},
		{"traversal", "..", ErrInvalidID},
		{"null byte", "a\x00b", ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateID(tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
