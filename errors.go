package bitmapstore

import (
	"errors"
	"fmt"
)

var (
	// ErrIO matches every *IOError via errors.Is.
	ErrIO = errors.New("storage i/o failure")

	// ErrCorruptIndex matches every *CorruptIndexError via errors.Is.
	ErrCorruptIndex = errors.New("corrupt index")

	ErrNilImage  = errors.New("image is nil")
	ErrInvalidID = errors.New("invalid record id")
	ErrNoCodec   = errors.New("codec cannot be nil")
)

var (
	errFileClosed = errors.New("pending file is closed")
	errEmptyPath  = errors.New("target path cannot be empty")
)

// IOError reports a disk read or write failure.
//
// The original os error can be accessed via errors.Unwrap, so checks such as
// errors.Is(err, fs.ErrPermission) keep working.
type IOError struct {
	Op    string
	Path  string
	cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.cause)
}

func (e *IOError) Unwrap() error { return e.cause }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// CorruptIndexError reports an index file that exists but cannot be decoded.
type CorruptIndexError struct {
	Path  string
	cause error
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index %s: %v", e.Path, e.cause)
}

func (e *CorruptIndexError) Unwrap() error { return e.cause }

func (e *CorruptIndexError) Is(target error) bool { return target == ErrCorruptIndex }

func ioError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, cause: err}
}
