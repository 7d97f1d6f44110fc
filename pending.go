package bitmapstore

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".tmp-"

// pendingFile is a file being written inside the storage directory.
// It implements io.Writer so it can be used with io.Copy, json.Encoder and
// image encoders. A pendingFile is owned by a single goroutine.
//
// Why temp file and rename: the index is rewritten in full on every Store.
// Writing it in place would leave a truncated metadata.json after a crash,
// which the next open discards as corrupt, losing every record. Renaming a
// synced temp file within the same directory replaces the old file in one
// step, so a crash leaves either the old or the new content.
//
// Example usage:
//
//	pf, err := newPendingFile(dir, 0644)
//	if err != nil {
//		return err
//	}
//	defer pf.Discard() // Safety: cleanup if not committed
//
//	if _, err = pf.Write(data); err != nil {
//		return err
//	}
//
//	return pf.CommitAs(filepath.Join(dir, "final.png"))
type pendingFile struct {
	tmpFile *os.File
	tmpPath string
	mode    os.FileMode
	size    int64

	// Buffers the first 512 bytes for http.DetectContentType.
	sniff     []byte
	sniffUsed int

	closed bool
	err    error // Sticky error for failed writes
}

// newPendingFile creates a temporary file in dir. The file must be
// committed with CommitAs or released with Discard.
func newPendingFile(dir string, mode os.FileMode) (*pendingFile, error) {
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return nil, err
	}

	return &pendingFile{
		tmpFile: f,
		tmpPath: f.Name(),
		mode:    mode,
		sniff:   make([]byte, 512),
	}, nil
}

// Write implements io.Writer.
func (p *pendingFile) Write(b []byte) (int, error) {
	if p.closed {
		return 0, errFileClosed
	}

	if p.err != nil {
		return 0, p.err
	}

	if p.sniffUsed < len(p.sniff) {
		p.sniffUsed += copy(p.sniff[p.sniffUsed:], b)
	}

	written, err := p.tmpFile.Write(b)
	p.size += int64(written)
	if err != nil {
		p.err = err
		return written, err
	}

	return written, nil
}

// ContentType returns the MIME type sniffed from the first bytes written.
func (p *pendingFile) ContentType() string {
	return http.DetectContentType(p.sniff[:p.sniffUsed])
}

// Size returns the number of bytes written so far.
func (p *pendingFile) Size() int64 {
	return p.size
}

// CommitAs syncs and closes the temporary file and renames it to path.
// After CommitAs the pending file is closed, whether or not it succeeded.
func (p *pendingFile) CommitAs(path string) error {
	if p.closed {
		return errFileClosed
	}

	if p.err != nil {
		return p.err
	}

	if path == "" {
		p.err = errEmptyPath
		return p.err
	}

	p.closed = true

	// Clean up on error
	defer func() {
		if p.err != nil {
			_ = os.Remove(p.tmpPath)
		}
	}()

	if err := p.tmpFile.Sync(); err != nil {
		p.err = err
		_ = p.tmpFile.Close()
		return p.err
	}

	if err := p.tmpFile.Close(); err != nil {
		p.err = err
		return p.err
	}

	// CreateTemp always uses 0600.
	if err := os.Chmod(p.tmpPath, p.mode); err != nil {
		p.err = err
		return p.err
	}

	if err := os.Rename(p.tmpPath, path); err != nil {
		p.err = err
		return p.err
	}

	return nil
}

// Discard closes and removes the temporary file without committing.
// Idempotent; a no-op after a successful commit.
func (p *pendingFile) Discard() error {
	if p.closed {
		return nil
	}

	p.closed = true

	if err := p.tmpFile.Close(); err != nil && p.err == nil {
		p.err = err
	}

	_ = os.Remove(p.tmpPath) // best effort

	return p.err
}

// removeStaleTemps deletes temporary files left behind by a process that
// died between create and commit.
func removeStaleTemps(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
