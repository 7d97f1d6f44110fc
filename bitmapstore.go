// Package bitmapstore persists images as files in a directory and keeps
// their metadata in a sidecar JSON index.
//
// # Design
//
// Every stored image gets a generated UUID. The payload is written to
// <dir>/<id>.png and a Record describing it (id, name, storage time, file
// path) is added to <dir>/metadata.json. The index is held in memory and the
// whole file is rewritten on every Store.
//
// Payload and index writes both go through a temporary file that is renamed
// into place, so neither file is ever observed half-written. The two writes
// are not atomic together: if the index write fails after the payload was
// committed, the payload is left on disk without metadata. Orphans lists
// such files. The reverse, metadata pointing at a missing file, is never
// produced by Store, and LoadBlob treats it as absence.
//
// A missing or corrupt index never prevents the store from opening. A
// corrupt index is logged and replaced by an empty one.
//
// # Usage
//
//	storage, err := bitmapstore.NewStorage("/data/images")
//	if err != nil {
//		return err
//	}
//
//	id, err := storage.Store(ctx, pngBytes, "red square")
//
//	rec, ok := storage.GetMetadata(id)
//
//	data, ok, err := storage.LoadBlob(ctx, id)
//
//	for _, rec := range storage.ListAll() {
//		// newest first
//	}
//
// # Concurrency
//
// A Storage is safe for concurrent use by multiple goroutines. Two
// processes must not share a directory: the index is last-writer-wins.
package bitmapstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

type Storage struct {
	dir  string
	opts *Options
	log  *slog.Logger

	mu    sync.RWMutex
	index *index
}

// NewStorage opens the storage directory dir, creating it if needed, and
// loads its index.
//
// Only a failure to create or resolve the directory is returned as an
// error. An unreadable or corrupt index is logged at Warn level and the
// store starts empty.
func NewStorage(dir string, opts ...OptionFunc) (*Storage, error) {
	// Copy default options to avoid mutating the global default.
	options := &Options{
		FileMode: defaultOpts.FileMode,
		DirMode:  defaultOpts.DirMode,
		Codec:    defaultOpts.Codec,
		Clock:    defaultOpts.Clock,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.Codec == nil {
		return nil, ErrNoCodec
	}
	if options.Clock == nil {
		options.Clock = defaultOpts.Clock
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage directory: %w", err)
	}

	if err := os.MkdirAll(dir, options.DirMode); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", ioError("mkdir", dir, err))
	}

	if n, err := removeStaleTemps(dir); err != nil {
		logger.Warn("scanning for stale temp files failed", "path", dir, "error", err)
	} else if n > 0 {
		logger.Debug("removed stale temp files", "path", dir, "count", n)
	}

	// Why fail open: records are cheap to lose next to the images
	// themselves, which stay on disk and are reported by Orphans. Refusing
	// to open would lock the caller out of storing anything new until
	// someone repairs metadata.json by hand.
	ix, err := loadIndex(filepath.Join(dir, indexFileName))
	if err != nil {
		logger.Warn("discarding unreadable index", "path", filepath.Join(dir, indexFileName), "error", err)
		ix = newIndex()
	}

	return &Storage{
		dir:   dir,
		opts:  options,
		log:   logger,
		index: ix,
	}, nil
}

// Dir returns the absolute storage directory.
func (s *Storage) Dir() string {
	return s.dir
}

// Len returns the number of records in the index.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.len()
}

// Store writes payload to a new file and records it under a fresh id.
//
// The payload is stored as given; it is expected to already be in the
// codec's encoding (see StoreImage). If the payload cannot be written no
// record is created. If the index cannot be written the record is kept in
// memory, the payload stays on disk, and an *IOError is returned.
func (s *Storage) Store(ctx context.Context, payload []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := newID()
	path := s.blobPath(id)

	size, err := s.writeBlob(path, payload)
	if err != nil {
		return "", err
	}

	rec := Record{
		ID:       id,
		Name:     name,
		StoredAt: s.opts.Clock().UTC(),
		FilePath: path,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.index.put(rec)
	if err := saveIndex(s.dir, s.index, s.opts.FileMode); err != nil {
		s.log.Warn("payload stored without persisted metadata", "id", id, "path", path, "error", err)
		return "", err
	}

	s.log.Debug("stored image", "id", id, "name", name, "path", path, "size", size)
	return id, nil
}

// StoreImage encodes img with the configured codec and stores the result.
func (s *Storage) StoreImage(ctx context.Context, img image.Image, name string) (string, error) {
	if img == nil {
		return "", ErrNilImage
	}

	var buf bytes.Buffer
	if err := s.opts.Codec.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}

	return s.Store(ctx, buf.Bytes(), name)
}

// GetMetadata returns the record for id. It never touches the disk.
func (s *Storage) GetMetadata(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.get(id)
}

// LoadBlob returns the stored payload for id.
//
// ok is false when id is unknown or its file no longer exists; neither case
// is an error. Other read failures are returned as *IOError.
func (s *Storage) LoadBlob(ctx context.Context, id string) (data []byte, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	rec, found := s.GetMetadata(id)
	if !found {
		return nil, false, nil
	}

	path := s.resolve(rec.FilePath)
	data, err = os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("payload missing on disk", "id", id, "path", path)
			return nil, false, nil
		}
		return nil, false, ioError("read blob", path, err)
	}

	return data, true, nil
}

// LoadImage loads the payload for id and decodes it with the configured
// codec. Absence is reported like LoadBlob; a payload that does not decode
// is an error.
func (s *Storage) LoadImage(ctx context.Context, id string) (image.Image, bool, error) {
	data, ok, err := s.LoadBlob(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}

	img, err := s.opts.Codec.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decoding image %q: %w", id, err)
	}

	return img, true, nil
}

// ListAll returns every record, most recently stored first. Records with the
// same timestamp keep their index order.
func (s *Storage) ListAll() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.sorted()
}

// writeBlob commits payload to path and returns the number of bytes written.
func (s *Storage) writeBlob(path string, payload []byte) (int64, error) {
	pf, err := newPendingFile(s.dir, s.opts.FileMode)
	if err != nil {
		return 0, ioError("write blob", path, err)
	}
	defer pf.Discard()

	if _, err := pf.Write(payload); err != nil {
		return 0, ioError("write blob", path, err)
	}

	if ct, want := pf.ContentType(), s.opts.Codec.ContentType(); ct != want {
		s.log.Warn("payload does not match codec content type", "path", path, "detected", ct, "expected", want)
	}

	if err := pf.CommitAs(path); err != nil {
		return 0, ioError("write blob", path, err)
	}

	return pf.Size(), nil
}

// blobPath derives the payload location for id.
func (s *Storage) blobPath(id string) string {
	return filepath.Join(s.dir, id+"."+s.opts.Codec.Ext())
}

// resolve interprets relative paths from hand-edited indexes as relative to
// the storage directory.
func (s *Storage) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dir, path)
}
