package bitmapstore

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extractArchive unpacks a zstd tar stream into dir.
func extractArchive(t *testing.T, r io.Reader, dir string) []string {
	t.Helper()

	zr, err := zstd.NewReader(r)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, hdr.Name), data, 0o644))
		names = append(names, hdr.Name)
	}
	return names
}

func TestArchive(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	payloads := map[string][]byte{}
	for i, name := range []string{"one", "two", "three"} {
		p := redSquare(t, i+1)
		id, err := storage.Store(context.Background(), p, name)
		require.NoError(t, err)
		payloads[id] = p
	}

	var buf bytes.Buffer
	require.NoError(t, storage.Archive(context.Background(), &buf))

	restoreDir := t.TempDir()
	names := extractArchive(t, &buf, restoreDir)
	require.Len(t, names, 4)
	assert.Equal(t, indexFileName, names[0])

	raw, err := os.ReadFile(filepath.Join(restoreDir, indexFileName))
	require.NoError(t, err)
	var archived []Record
	require.NoError(t, json.Unmarshal(raw, &archived))
	for _, rec := range archived {
		assert.Equal(t, rec.ID+".png", rec.FilePath, "archived paths are relative")
	}

	restored, err := NewStorage(restoreDir)
	require.NoError(t, err)
	require.Equal(t, 3, restored.Len())

	for id, want := range payloads {
		got, ok, err := restored.LoadBlob(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)

		orig, _ := storage.GetMetadata(id)
		rec, _ := restored.GetMetadata(id)
		assert.Equal(t, orig.Name, rec.Name)
		assert.True(t, orig.StoredAt.Equal(rec.StoredAt))
	}
}

func TestArchive_SkipsMissingPayloads(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	keep, err := storage.Store(context.Background(), redSquare(t, 1), "keep")
	require.NoError(t, err)
	gone, err := storage.Store(context.Background(), redSquare(t, 1), "gone")
	require.NoError(t, err)

	rec, _ := storage.GetMetadata(gone)
	require.NoError(t, os.Remove(rec.FilePath))

	var buf bytes.Buffer
	require.NoError(t, storage.Archive(context.Background(), &buf))

	names := extractArchive(t, &buf, t.TempDir())
	assert.ElementsMatch(t, []string{indexFileName, keep + ".png"}, names)
}

func TestArchive_Empty(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, storage.Archive(context.Background(), &buf))

	dir := t.TempDir()
	names := extractArchive(t, &buf, dir)
	assert.Equal(t, []string{indexFileName}, names)

	raw, err := os.ReadFile(filepath.Join(dir, indexFileName))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))
}

func TestArchive_CanceledContext(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Store(context.Background(), redSquare(t, 1), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = storage.Archive(ctx, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}
