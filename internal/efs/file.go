package efs

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var errReadOnly = errors.New("file opened read-only")

// file is an in-memory plaintext buffer. Writable files are sealed back to
// the underlying filesystem on Close.
type file struct {
	name       string
	data       []byte
	pos        int64
	writable   bool
	appendOnly bool
	dirty      bool
	closed     bool
	flush      func([]byte) error
}

func (f *file) Name() string {
	return f.name
}

func (f *file) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("readat %s: negative offset", f.name)
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = int64(len(f.data)) + offset
	default:
		return 0, fmt.Errorf("seek %s: invalid whence %d", f.name, whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek %s: negative position", f.name)
	}
	f.pos = abs
	return abs, nil
}

func (f *file) Write(p []byte) (int, error) {
	if f.appendOnly {
		f.pos = int64(len(f.data))
	}
	n, err := f.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *file) WriteAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if !f.writable {
		return 0, &os.PathError{Op: "write", Path: f.name, Err: errReadOnly}
	}
	if end := off + int64(len(p)); end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	f.dirty = true
	return len(p), nil
}

func (f *file) Truncate(size int64) error {
	if !f.writable {
		return &os.PathError{Op: "truncate", Path: f.name, Err: errReadOnly}
	}
	if size < int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.dirty = true
	return nil
}

func (f *file) Close() error {
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	if f.writable && f.dirty {
		return f.flush(f.data)
	}
	return nil
}

func (f *file) Lock() error   { return nil }
func (f *file) Unlock() error { return nil }
