package bitmapstore

import (
	"log/slog"
	"os"
	"time"
)

// Options configures Storage behavior.
type Options struct {
	FileMode os.FileMode      // Permission bits for payload and index files
	DirMode  os.FileMode      // Permission bits for the storage directory
	Codec    Codec            // Canonical image encoding
	Logger   *slog.Logger     // Destination for diagnostics
	Clock    func() time.Time // Source of StoredAt timestamps
}

// OptionFunc is a functional option for configuring Storage.
type OptionFunc func(opts *Options)

// WithFileMode sets the file permission mode for payload and index files.
// Default is 0644.
func WithFileMode(mode os.FileMode) OptionFunc {
	return func(opts *Options) {
		opts.FileMode = mode
	}
}

// WithDirMode sets the permission mode used when creating the storage
// directory. Default is 0755.
func WithDirMode(mode os.FileMode) OptionFunc {
	return func(opts *Options) {
		opts.DirMode = mode
	}
}

// WithCodec replaces the canonical encoding. Default is PNGCodec.
// Existing records keep their recorded file paths when the codec changes.
func WithCodec(c Codec) OptionFunc {
	return func(opts *Options) {
		opts.Codec = c
	}
}

// WithLogger sets the structured logger. Storage only logs at Debug and
// Warn; by default nothing is logged.
func WithLogger(l *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = l
	}
}

// WithClock overrides the time source used for StoredAt.
func WithClock(now func() time.Time) OptionFunc {
	return func(opts *Options) {
		opts.Clock = now
	}
}

var defaultOpts = &Options{
	FileMode: 0644,
	DirMode:  0755,
	Codec:    PNGCodec{},
	Clock:    time.Now,
}
