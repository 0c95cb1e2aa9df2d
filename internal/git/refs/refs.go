package refs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

const (
	// HEAD is the ref naming the current branch.
	HEAD = "HEAD"

	// Master is the only branch vaults use.
	Master = "refs/heads/master"

	packedRefsFile = "packed-refs"
	symbolicPrefix = "ref: "
	peelSuffix     = "^{}"

	// maxHops bounds resolution so a ref cycle fails instead of spinning.
	maxHops = 10
)

// Files in the repository directory that are never refs.
var metadataFiles = map[string]bool{
	"config":      true,
	"description": true,
	"index":       true,
	"shallow":     true,
	"commondir":   true,
}

// Ref is one entry from List.
type Ref struct {
	Name string
	Oid  object.Oid
}

// Manager reads and writes refs under a repository directory.
type Manager struct {
	fs billy.Filesystem
}

func New(fs billy.Filesystem) *Manager {
	return &Manager{fs: fs}
}

func candidates(name string) []string {
	return []string{
		name,
		"refs/" + name,
		"refs/tags/" + name,
		"refs/heads/" + name,
		"refs/remotes/" + name,
		"refs/remotes/" + name + "/HEAD",
	}
}

// Resolve follows ref to an oid.
func (m *Manager) Resolve(ref string) (string, error) {
	return m.ResolveDepth(ref, -1)
}

// ResolveDepth follows ref for at most depth symbolic hops and returns
// whatever it reached: an oid, or the ref name where it stopped. A negative
// depth follows until an oid is reached.
func (m *Manager) ResolveDepth(ref string, depth int) (string, error) {
	packed, err := m.packed()
	if err != nil {
		return "", err
	}

	current := ref
	for hops := 0; hops <= maxHops; hops++ {
		if object.IsOid(current) {
			return current, nil
		}
		target, err := m.lookup(current, packed)
		if err != nil {
			return "", err
		}
		next, symbolic := strings.CutPrefix(target, symbolicPrefix)
		if !symbolic {
			current = target
			continue
		}
		if depth == 0 {
			return current, nil
		}
		if depth > 0 {
			depth--
			if depth == 0 {
				return next, nil
			}
		}
		current = next
	}
	return "", fmt.Errorf("%w: %s", kerrors.ErrRefLoop, ref)
}

// lookup finds the first candidate path for name and returns its raw value.
func (m *Manager) lookup(name string, packed map[string]object.Oid) (string, error) {
	if strings.HasPrefix(name, symbolicPrefix) {
		return name, nil
	}
	for _, candidate := range candidates(name) {
		if metadataFiles[candidate] {
			continue
		}
		data, err := util.ReadFile(m.fs, candidate)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if oid, ok := packed[candidate]; ok {
			return string(oid), nil
		}
	}
	return "", fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, name)
}

func (m *Manager) packed() (map[string]object.Oid, error) {
	f, err := m.fs.Open(packedRefsFile)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]object.Oid{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePackedRefs(f)
}

// ParsePackedRefs reads a packed-refs file. A "^<oid>" line records the
// peeled target of the ref before it under "<name>^{}".
func ParsePackedRefs(r io.Reader) (map[string]object.Oid, error) {
	refs := make(map[string]object.Oid)
	last := ""
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if peel, ok := strings.CutPrefix(line, "^"); ok {
			if last == "" || !object.IsOid(peel) {
				continue
			}
			refs[last+peelSuffix] = object.Oid(peel)
			continue
		}
		oid, name, ok := strings.Cut(line, " ")
		if !ok || !object.IsOid(oid) {
			continue
		}
		refs[name] = object.Oid(oid)
		last = name
	}
	return refs, scanner.Err()
}

// List returns every ref under refs/<prefix>, loose and packed, with
// "<name>^{}" peels sorted directly after their base ref.
func (m *Manager) List(prefix string) ([]Ref, error) {
	root := path.Join("refs", prefix)
	found := make(map[string]object.Oid)

	packed, err := m.packed()
	if err != nil {
		return nil, err
	}
	for name, oid := range packed {
		if name == root || strings.HasPrefix(name, root+"/") {
			found[name] = oid
		}
	}

	err = util.Walk(m.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		resolved, err := m.Resolve(p)
		if err != nil {
			return err
		}
		found[p] = object.Oid(resolved)
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	out := make([]Ref, 0, len(found))
	for name, oid := range found {
		out = append(out, Ref{Name: name, Oid: oid})
	}
	sort.Slice(out, func(i, j int) bool {
		a := strings.TrimSuffix(out[i].Name, peelSuffix)
		b := strings.TrimSuffix(out[j].Name, peelSuffix)
		if a != b {
			return a < b
		}
		return !strings.HasSuffix(out[i].Name, peelSuffix)
	})
	return out, nil
}

// Write points name at oid.
func (m *Manager) Write(name string, oid object.Oid) error {
	if !oid.IsValid() {
		return fmt.Errorf("%w: %q", kerrors.ErrInvalidOid, string(oid))
	}
	return m.writeFile(name, string(oid)+"\n")
}

// WriteSymbolic makes name point at the ref target.
func (m *Manager) WriteSymbolic(name, target string) error {
	return m.writeFile(name, symbolicPrefix+target+"\n")
}

func (m *Manager) writeFile(name, content string) error {
	if err := m.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	return util.WriteFile(m.fs, name, []byte(content), 0o644)
}

// Delete removes name, loose and packed.
func (m *Manager) Delete(name string) error {
	err := m.fs.Remove(name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	looseFound := err == nil

	packed, err := m.packed()
	if err != nil {
		return err
	}
	if _, ok := packed[name]; !ok {
		if !looseFound {
			return fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, name)
		}
		return nil
	}
	delete(packed, name)
	delete(packed, name+peelSuffix)
	return m.writePacked(packed)
}

func (m *Manager) writePacked(packed map[string]object.Oid) error {
	names := make([]string, 0, len(packed))
	for name := range packed {
		if !strings.HasSuffix(name, peelSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString("# pack-refs with: peeled\n")
	for _, name := range names {
		fmt.Fprintf(&buf, "%s %s\n", packed[name], name)
		if peel, ok := packed[name+peelSuffix]; ok {
			fmt.Fprintf(&buf, "^%s\n", peel)
		}
	}
	return util.WriteFile(m.fs, packedRefsFile, buf.Bytes(), 0o644)
}
