package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// Normalized tree entry modes.
const (
	ModeTree       = "040000"
	ModeFile       = "100644"
	ModeExecutable = "100755"
	ModeSymlink    = "120000"
	ModeSubmodule  = "160000"
)

// TreeEntry is one row of a tree.
type TreeEntry struct {
	Mode string
	Path string
	Oid  Oid
	Type Type
}

// Tree is an ordered list of entries.
type Tree struct {
	Entries []TreeEntry
}

// NormalizeMode maps any octal mode onto one of the five modes a tree may
// hold. Regular files keep only the executable distinction.
func NormalizeMode(mode string) (string, error) {
	m, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return "", fmt.Errorf("%w: mode %q", kerrors.ErrInvalidObject, mode)
	}
	switch m & 0o170000 {
	case 0o040000:
		return ModeTree, nil
	case 0o120000:
		return ModeSymlink, nil
	case 0o160000:
		return ModeSubmodule, nil
	case 0o100000:
		if m&0o111 != 0 {
			return ModeExecutable, nil
		}
		return ModeFile, nil
	}
	return "", fmt.Errorf("%w: mode %q", kerrors.ErrInvalidObject, mode)
}

// TypeForMode returns the object type an entry with mode points at.
func TypeForMode(mode string) Type {
	switch mode {
	case ModeTree:
		return TypeTree
	case ModeSubmodule:
		return TypeCommit
	}
	return TypeBlob
}

// NewTree builds a tree from entries, normalizing modes and sorting into
// canonical order. Entry types are derived from the normalized modes.
func NewTree(entries []TreeEntry) (*Tree, error) {
	out := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Path == "" || strings.ContainsAny(e.Path, "/\x00") {
			return nil, fmt.Errorf("%w: tree entry path %q", kerrors.ErrInvalidObject, e.Path)
		}
		if !e.Oid.IsValid() {
			return nil, fmt.Errorf("%w: tree entry %q", kerrors.ErrInvalidOid, e.Path)
		}
		mode, err := NormalizeMode(e.Mode)
		if err != nil {
			return nil, err
		}
		out = append(out, TreeEntry{Mode: mode, Path: e.Path, Oid: e.Oid, Type: TypeForMode(mode)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return compareEntryPaths(out[i], out[j]) < 0
	})
	return &Tree{Entries: out}, nil
}

// compareEntryPaths orders entries the way tree hashing requires: trees sort
// as if their name had a trailing slash.
func compareEntryPaths(a, b TreeEntry) int {
	an, bn := a.Path, b.Path
	if a.Mode == ModeTree {
		an += "/"
	}
	if b.Mode == ModeTree {
		bn += "/"
	}
	return strings.Compare(an, bn)
}

// TreeFromBytes parses a tree's content bytes. Entry order is preserved.
func TreeFromBytes(data []byte) (*Tree, error) {
	var entries []TreeEntry
	for len(data) > 0 {
		space := bytes.IndexByte(data, ' ')
		if space < 0 {
			return nil, fmt.Errorf("%w: tree entry missing mode", kerrors.ErrInvalidObject)
		}
		nul := bytes.IndexByte(data[space:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: tree entry missing path terminator", kerrors.ErrInvalidObject)
		}
		nul += space
		if len(data) < nul+1+20 {
			return nil, fmt.Errorf("%w: tree entry truncated", kerrors.ErrInvalidObject)
		}

		mode, err := NormalizeMode(string(data[:space]))
		if err != nil {
			return nil, err
		}
		oid, err := OidFromBytes(data[nul+1 : nul+21])
		if err != nil {
			return nil, err
		}
		entries = append(entries, TreeEntry{
			Mode: mode,
			Path: string(data[space+1 : nul]),
			Oid:  oid,
			Type: TypeForMode(mode),
		})
		data = data[nul+21:]
	}
	return &Tree{Entries: entries}, nil
}

// Bytes renders the tree's canonical content bytes. Directory modes drop
// their leading zero on disk. It fails on an entry whose oid is not valid hex.
func (t *Tree) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		raw, err := e.Oid.Bytes()
		if err != nil {
			return nil, fmt.Errorf("tree entry %q: %w", e.Path, err)
		}
		buf.WriteString(strings.TrimPrefix(e.Mode, "0"))
		buf.WriteByte(' ')
		buf.WriteString(e.Path)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// Find returns the entry named path.
func (t *Tree) Find(path string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return TreeEntry{}, false
}
