package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/refs"
)

// Signer produces a detached, armored signature for a commit payload.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
}

// CommitOptions describes a commit.
type CommitOptions struct {
	Message string
	Author  object.Signature

	// Committer defaults to Author.
	Committer object.Signature

	// AllowEmpty records a commit even when the tree did not change.
	AllowEmpty bool

	// Signer, when set, signs the commit into its gpgsig header.
	Signer Signer
}

// Add stages the worktree file at name.
func (r *Repository) Add(name string) error {
	name = cleanPath(name)
	data, err := util.ReadFile(r.worktree, name)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	oid, err := r.Objects.Write(object.TypeBlob, data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.staged[name] = &oid
	r.mu.Unlock()
	return nil
}

// Remove deletes name from the worktree, if present, and stages its removal.
func (r *Repository) Remove(name string) error {
	name = cleanPath(name)
	if _, err := r.worktree.Stat(name); err == nil {
		if err := r.worktree.Remove(name); err != nil {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	r.mu.Lock()
	r.staged[name] = nil
	r.mu.Unlock()
	return nil
}

// Reset drops all staged changes.
func (r *Repository) Reset() {
	r.mu.Lock()
	r.staged = make(map[string]*object.Oid)
	r.mu.Unlock()
}

func cleanPath(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// Commit records the staged changes on top of HEAD and advances master.
func (r *Repository) Commit(opts CommitOptions) (object.Oid, error) {
	r.mu.Lock()
	staged := r.staged
	r.staged = make(map[string]*object.Oid)
	r.mu.Unlock()

	restore := func() {
		r.mu.Lock()
		for name, oid := range staged {
			if _, ok := r.staged[name]; !ok {
				r.staged[name] = oid
			}
		}
		r.mu.Unlock()
	}

	parent, err := r.headOrZero()
	if err != nil {
		restore()
		return "", err
	}

	files := map[string]object.TreeEntry{}
	var parentTree object.Oid
	if parent != "" {
		c, err := r.ReadCommit(parent)
		if err != nil {
			restore()
			return "", err
		}
		parentTree = c.Tree
		if files, err = r.flatten(c.Tree); err != nil {
			restore()
			return "", err
		}
	}
	for name, oid := range staged {
		if oid == nil {
			delete(files, name)
			continue
		}
		files[name] = object.TreeEntry{Mode: object.ModeFile, Path: name, Oid: *oid}
	}

	treeOid, err := r.writeTree(files)
	if err != nil {
		restore()
		return "", err
	}
	if parent != "" && treeOid == parentTree && !opts.AllowEmpty {
		restore()
		return "", kerrors.ErrNothingToCommit
	}

	message := opts.Message
	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	fields := object.CommitFields{
		Tree:      treeOid,
		Author:    opts.Author,
		Committer: opts.Committer,
		Message:   message,
	}
	if parent != "" {
		fields.Parents = []object.Oid{parent}
	}
	commit, err := object.NewCommit(fields)
	if err != nil {
		restore()
		return "", err
	}
	if opts.Signer != nil {
		sig, err := opts.Signer.Sign(commit.PayloadBytes())
		if err != nil {
			restore()
			return "", fmt.Errorf("signing commit: %w", err)
		}
		commit.GPGSig = strings.TrimSuffix(string(sig), "\n")
	}

	oid, err := r.Objects.Write(object.TypeCommit, commit.Bytes())
	if err != nil {
		restore()
		return "", err
	}
	if err := r.Refs.Write(refs.Master, oid); err != nil {
		restore()
		return "", fmt.Errorf("advancing %s: %w", refs.Master, err)
	}
	r.log.Debugf("Committed %s: %s", oid, strings.TrimSpace(message))
	return oid, nil
}

// flatten lists every blob reachable from tree by its full path.
func (r *Repository) flatten(tree object.Oid) (map[string]object.TreeEntry, error) {
	files := map[string]object.TreeEntry{}
	type pending struct {
		prefix string
		oid    object.Oid
	}
	stack := []pending{{oid: tree}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t, err := r.ReadTree(p.oid)
		if err != nil {
			return nil, err
		}
		for _, e := range t.Entries {
			full := path.Join(p.prefix, e.Path)
			switch e.Type {
			case object.TypeTree:
				stack = append(stack, pending{prefix: full, oid: e.Oid})
			case object.TypeBlob:
				e.Path = full
				files[full] = e
			}
		}
	}
	return files, nil
}

// writeTree writes the nested trees for a flat path listing and returns the
// root tree's oid.
func (r *Repository) writeTree(files map[string]object.TreeEntry) (object.Oid, error) {
	dirs := map[string][]object.TreeEntry{"": nil}
	var dirNames []string
	for full, e := range files {
		dir, base := path.Split(full)
		dir = strings.TrimSuffix(dir, "/")
		dirs[dir] = append(dirs[dir], object.TreeEntry{Mode: e.Mode, Path: base, Oid: e.Oid})
		for d := dir; d != ""; d = parentDir(d) {
			if _, ok := dirs[d]; !ok {
				dirs[d] = nil
			}
		}
	}
	for d := range dirs {
		dirNames = append(dirNames, d)
	}
	// Deepest directories first so every subtree exists before its parent.
	sort.Slice(dirNames, func(i, j int) bool {
		di, dj := strings.Count(dirNames[i], "/"), strings.Count(dirNames[j], "/")
		if dirNames[i] == "" {
			return false
		}
		if dirNames[j] == "" {
			return true
		}
		if di != dj {
			return di > dj
		}
		return dirNames[i] < dirNames[j]
	})

	var root object.Oid
	for _, d := range dirNames {
		tree, err := object.NewTree(dirs[d])
		if err != nil {
			return "", err
		}
		data, err := tree.Bytes()
		if err != nil {
			return "", err
		}
		oid, err := r.Objects.Write(object.TypeTree, data)
		if err != nil {
			return "", err
		}
		if d == "" {
			root = oid
			continue
		}
		parent := parentDir(d)
		dirs[parent] = append(dirs[parent], object.TreeEntry{Mode: object.ModeTree, Path: path.Base(d), Oid: oid})
	}
	return root, nil
}

func parentDir(dir string) string {
	parent := path.Dir(dir)
	if parent == "." {
		return ""
	}
	return parent
}
