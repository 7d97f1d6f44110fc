package bitmapstore

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Orphans returns the absolute paths of payload files in the storage
// directory that no record points to, sorted by name.
//
// Orphans appear when Store committed a payload but failed to write the
// index. They are reported, never removed.
func (s *Storage) Orphans(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ioError("list directory", s.dir, err)
	}

	s.mu.RLock()
	known := make(map[string]struct{}, s.index.len())
	for _, rec := range s.index.snapshot() {
		known[filepath.Clean(s.resolve(rec.FilePath))] = struct{}{}
	}
	s.mu.RUnlock()

	suffix := "." + s.opts.Codec.Ext()

	var orphans []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, suffix) {
			continue
		}

		path := filepath.Join(s.dir, name)
		if _, ok := known[path]; ok {
			continue
		}
		orphans = append(orphans, path)
	}

	slices.Sort(orphans)
	return orphans, nil
}
