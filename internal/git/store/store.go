package store

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/packfile"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// Format selects the representation Read returns.
type Format int

const (
	// FormatContent is the object's payload without its header.
	FormatContent Format = iota

	// FormatWrapped is "<type> <len>\x00" followed by the payload.
	FormatWrapped

	// FormatDeflated is the zlib compressed wrapped form, as stored loose.
	FormatDeflated
)

const (
	objectsDir  = "objects"
	packDir     = "objects/pack"
	shallowFile = "shallow"
)

type pack struct {
	name  string
	index *packfile.Index
	data  []byte
}

// Store reads and writes objects under a repository directory.
type Store struct {
	fs  billy.Filesystem
	log logger.Logger

	mu          sync.Mutex
	packs       []*pack
	packsListed bool
}

// New returns a Store rooted at the repository directory fs.
func New(fs billy.Filesystem, log logger.Logger) *Store {
	return &Store{fs: fs, log: log}
}

func loosePath(oid object.Oid) string {
	s := string(oid)
	return path.Join(objectsDir, s[:2], s[2:])
}

// Read returns oid in the requested format.
func (s *Store) Read(oid object.Oid, format Format) ([]byte, error) {
	if !oid.IsValid() {
		return nil, fmt.Errorf("%w: %q", kerrors.ErrInvalidOid, string(oid))
	}

	deflated, err := util.ReadFile(s.fs, loosePath(oid))
	if err == nil {
		return s.fromDeflated(oid, deflated, format)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %v", kerrors.ErrReadObject, oid, err)
	}

	typ, data, found, err := s.readPacked(oid)
	if err != nil {
		return nil, err
	}
	if found {
		return render(oid, typ, data, format)
	}

	shallow, err := s.Shallow()
	if err != nil {
		return nil, err
	}
	for _, sh := range shallow {
		if sh == oid {
			return nil, fmt.Errorf("%w: %s", kerrors.ErrReadShallowObject, oid)
		}
	}
	return nil, fmt.Errorf("%w: %s", kerrors.ErrReadObject, oid)
}

// ReadObject returns the type and payload of oid.
func (s *Store) ReadObject(oid object.Oid) (object.Type, []byte, error) {
	wrapped, err := s.Read(oid, FormatWrapped)
	if err != nil {
		return "", nil, err
	}
	return object.Unwrap("", wrapped)
}

// Has reports whether oid is stored loose or packed.
func (s *Store) Has(oid object.Oid) bool {
	if !oid.IsValid() {
		return false
	}
	if _, err := s.fs.Stat(loosePath(oid)); err == nil {
		return true
	}
	found, err := s.inPack(oid)
	return err == nil && found != nil
}

func (s *Store) fromDeflated(oid object.Oid, deflated []byte, format Format) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(deflated))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kerrors.ErrInvalidObject, oid, err)
	}
	defer zr.Close()
	wrapped, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kerrors.ErrInvalidObject, oid, err)
	}
	_, content, err := object.Unwrap(oid, wrapped)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatDeflated:
		return deflated, nil
	case FormatWrapped:
		return wrapped, nil
	}
	return content, nil
}

func render(oid object.Oid, typ object.Type, data []byte, format Format) ([]byte, error) {
	got, wrapped := object.Wrap(typ, data)
	if got != oid {
		return nil, fmt.Errorf("%w: expected %s, got %s", kerrors.ErrHashMismatch, oid, got)
	}
	switch format {
	case FormatWrapped:
		return wrapped, nil
	case FormatDeflated:
		return deflate(wrapped)
	}
	return data, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write stores data as a loose object and returns its oid. Writing an
// object that already exists is a no-op.
func (s *Store) Write(t object.Type, data []byte) (object.Oid, error) {
	oid, wrapped := object.Wrap(t, data)
	if s.Has(oid) {
		return oid, nil
	}

	deflated, err := deflate(wrapped)
	if err != nil {
		return "", err
	}
	dst := loosePath(oid)
	dir := path.Dir(dst)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := s.writeAtomic(dir, "tmp_obj_", dst, deflated); err != nil {
		return "", err
	}
	s.log.Debugf("Wrote %s %s (%d bytes)", t, oid, len(data))
	return oid, nil
}

func (s *Store) writeAtomic(dir, prefix, dst string, data []byte) error {
	tmp, err := s.fs.TempFile(dir, prefix)
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := s.fs.Rename(tmp.Name(), dst); err != nil {
		s.fs.Remove(tmp.Name())
		return fmt.Errorf("renaming into %s: %w", dst, err)
	}
	return nil
}

// Shallow returns the commits listed in the shallow file.
func (s *Store) Shallow() ([]object.Oid, error) {
	f, err := s.fs.Open(shallowFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []object.Oid
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if object.IsOid(line) {
			out = append(out, object.Oid(line))
		}
	}
	return out, scanner.Err()
}

// MarkShallow adds oids to the shallow file.
func (s *Store) MarkShallow(oids ...object.Oid) error {
	existing, err := s.Shallow()
	if err != nil {
		return err
	}
	known := make(map[object.Oid]bool, len(existing))
	for _, oid := range existing {
		known[oid] = true
	}

	var buf bytes.Buffer
	for _, oid := range existing {
		buf.WriteString(string(oid) + "\n")
	}
	added := 0
	for _, oid := range oids {
		if !known[oid] {
			known[oid] = true
			buf.WriteString(string(oid) + "\n")
			added++
		}
	}
	if added == 0 {
		return nil
	}
	return util.WriteFile(s.fs, shallowFile, buf.Bytes(), 0o644)
}
