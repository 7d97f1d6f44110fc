package bitmapstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const indexFileName = "metadata.json"

// index maps ids to records and remembers insertion order so that
// ListAll can break timestamp ties deterministically.
type index struct {
	records map[string]Record
	order   []string
}

func newIndex() *index {
	return &index{records: make(map[string]Record)}
}

func (ix *index) get(id string) (Record, bool) {
	r, ok := ix.records[id]
	return r, ok
}

// put inserts or replaces a record. A replaced record keeps its position.
func (ix *index) put(r Record) {
	if _, ok := ix.records[r.ID]; !ok {
		ix.order = append(ix.order, r.ID)
	}
	ix.records[r.ID] = r
}

func (ix *index) len() int {
	return len(ix.order)
}

// snapshot returns the records in insertion order.
func (ix *index) snapshot() []Record {
	out := make([]Record, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.records[id])
	}
	return out
}

// sorted returns the records newest first. The sort is stable, so records
// with equal timestamps stay in insertion order.
func (ix *index) sorted() []Record {
	out := ix.snapshot()
	slices.SortStableFunc(out, func(a, b Record) int {
		return b.StoredAt.Compare(a.StoredAt)
	})
	return out
}

// loadIndex reads the index file at path.
//
// A missing file yields an empty index and no error. A file that exists but
// cannot be decoded yields a *CorruptIndexError; whether that is fatal is up
// to the caller.
func loadIndex(path string) (*index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newIndex(), nil
		}
		return nil, ioError("read index", path, err)
	}

	// Unmarshal rejects trailing data after the array; a streaming
	// Decoder would stop at the first value and accept it.
	var list []Record
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, &CorruptIndexError{Path: path, cause: fmt.Errorf("decoding records: %w", err)}
	}

	ix := newIndex()
	for i, r := range list {
		if err := validateID(r.ID); err != nil {
			return nil, &CorruptIndexError{Path: path, cause: fmt.Errorf("record %d: %w", i, err)}
		}
		ix.put(r)
	}

	return ix, nil
}

// saveIndex writes the full index to the index file in dir, replacing the
// previous file.
func saveIndex(dir string, ix *index, mode os.FileMode) error {
	path := filepath.Join(dir, indexFileName)
	pf, err := newPendingFile(dir, mode)
	if err != nil {
		return ioError("write index", path, err)
	}
	defer pf.Discard()

	enc := json.NewEncoder(pf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ix.snapshot()); err != nil {
		return ioError("write index", path, err)
	}

	if err := pf.CommitAs(path); err != nil {
		return ioError("write index", path, err)
	}

	return nil
}
