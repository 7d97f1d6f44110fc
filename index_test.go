package bitmapstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIndex_Missing(t *testing.T) {
	ix, err := loadIndex(filepath.Join(t.TempDir(), indexFileName))
	require.NoError(t, err)
	assert.Zero(t, ix.len())
}

func TestLoadIndex_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), indexFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := loadIndex(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptIndex)

	var corrupt *CorruptIndexError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, path, corrupt.Path)
	assert.NotNil(t, errors.Unwrap(corrupt))
}

func TestLoadIndex_TrailingData(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"garbage after array", `[{"id":"a","filePath":"a.png"}] <<<garbage`},
		{"second array", `[{"id":"a","filePath":"a.png"}][{"id":"b"}]`},
		{"second object", `[]{"id":"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), indexFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			ix, err := loadIndex(path)
			assert.Nil(t, ix)
			assert.ErrorIs(t, err, ErrCorruptIndex)
		})
	}
}

func TestLoadIndex_TrailingWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), indexFileName)
	require.NoError(t, os.WriteFile(path, []byte("[{\"id\":\"a\",\"filePath\":\"a.png\"}]\n\n"), 0o644))

	ix, err := loadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 1, ix.len())
}

func TestLoadIndex_InvalidID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"slash", "../escape"},
		{"backslash", `a\b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeIndex(t, dir, []Record{{ID: tt.id, FilePath: "x.png"}})

			_, err := loadIndex(filepath.Join(dir, indexFileName))
			assert.ErrorIs(t, err, ErrCorruptIndex)
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestLoadIndex_NullIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), indexFileName)
	require.NoError(t, os.WriteFile(path, []byte("null"), 0o644))

	ix, err := loadIndex(path)
	require.NoError(t, err)
	assert.Zero(t, ix.len())
}

func TestLoadIndex_DuplicateIDsLastWins(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	writeIndex(t, dir, []Record{
		{ID: "a", Name: "first", StoredAt: ts, FilePath: "a.png"},
		{ID: "b", Name: "other", StoredAt: ts, FilePath: "b.png"},
		{ID: "a", Name: "second", StoredAt: ts, FilePath: "a.png"},
	})

	ix, err := loadIndex(filepath.Join(dir, indexFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, ix.len())

	rec, ok := ix.get("a")
	require.True(t, ok)
	assert.Equal(t, "second", rec.Name)

	// "a" keeps the position of its first occurrence.
	snap := ix.snapshot()
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
}

func TestSaveLoadIndex_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	ix := newIndex()
	base := time.Date(2024, 5, 1, 10, 0, 0, 987654321, time.UTC)
	for i, name := range []string{"x", "y", "z"} {
		ix.put(Record{
			ID:       newID(),
			Name:     name,
			StoredAt: base.Add(time.Duration(i) * time.Minute),
			FilePath: filepath.Join(dir, name+".png"),
		})
	}

	require.NoError(t, saveIndex(dir, ix, 0o644))

	loaded, err := loadIndex(filepath.Join(dir, indexFileName))
	require.NoError(t, err)
	assert.Equal(t, ix.snapshot(), loaded.snapshot())
	assert.Equal(t, ix.sorted(), loaded.sorted())
}

func TestIndex_Sorted(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ix := newIndex()
	ix.put(Record{ID: "old", StoredAt: t0})
	ix.put(Record{ID: "new", StoredAt: t0.Add(2 * time.Hour)})
	ix.put(Record{ID: "tie-1", StoredAt: t0.Add(time.Hour)})
	ix.put(Record{ID: "tie-2", StoredAt: t0.Add(time.Hour)})

	var ids []string
	for _, r := range ix.sorted() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"new", "tie-1", "tie-2", "old"}, ids)

	// sorted never reorders the underlying insertion order.
	assert.Equal(t, "old", ix.snapshot()[0].ID)
}
