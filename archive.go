package bitmapstore

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Archive writes a zstd-compressed tar backup of the store to w.
//
// The archive contains metadata.json followed by every payload that exists
// on disk, each under its base file name, so extracting it into an empty
// directory yields a directory NewStorage can open. Payloads whose files
// have gone missing are skipped. Store calls block until Archive returns.
func (s *Storage) Archive(ctx context.Context, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	if err := s.archiveTo(ctx, tw); err != nil {
		_ = tw.Close()
		_ = zw.Close()
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zstd stream: %w", err)
	}

	return nil
}

func (s *Storage) archiveTo(ctx context.Context, tw *tar.Writer) error {
	records := s.index.snapshot()

	// Paths in the archived index are relative so the backup can be
	// restored into any directory.
	portable := make([]Record, len(records))
	for i, rec := range records {
		rec.FilePath = filepath.Base(rec.FilePath)
		portable[i] = rec
	}

	var idx bytes.Buffer
	enc := json.NewEncoder(&idx)
	enc.SetIndent("", "  ")
	if err := enc.Encode(portable); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	hdr := &tar.Header{
		Name: indexFileName,
		Mode: int64(s.opts.FileMode.Perm()),
		Size: int64(idx.Len()),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := tw.Write(idx.Bytes()); err != nil {
		return fmt.Errorf("writing index entry: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.archiveBlob(tw, rec); err != nil {
			return err
		}
	}

	return nil
}

func (s *Storage) archiveBlob(tw *tar.Writer, rec Record) error {
	path := s.resolve(rec.FilePath)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("skipping missing payload", "id", rec.ID, "path", path)
			return nil
		}
		return ioError("archive blob", path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return ioError("archive blob", path, err)
	}

	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return fmt.Errorf("building tar header for %q: %w", rec.ID, err)
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return ioError("archive blob", path, err)
	}

	return nil
}
