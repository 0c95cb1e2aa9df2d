package repo

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

// LogEntry is one commit in a history listing.
type LogEntry struct {
	Oid    object.Oid
	Commit *object.Commit
}

// Log walks first parents from HEAD, newest first. A limit of zero or less
// returns the whole history. The walk stops quietly at a shallow boundary.
func (r *Repository) Log(limit int) ([]LogEntry, error) {
	oid, err := r.headOrZero()
	if err != nil || oid == "" {
		return nil, err
	}
	var out []LogEntry
	for oid != "" && (limit <= 0 || len(out) < limit) {
		c, err := r.ReadCommit(oid)
		if errors.Is(err, kerrors.ErrReadShallowObject) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, LogEntry{Oid: oid, Commit: c})
		oid = ""
		if len(c.Parents) > 0 {
			oid = c.Parents[0]
		}
	}
	return out, nil
}

// Files lists the paths committed in commit, sorted.
func (r *Repository) Files(commit object.Oid) ([]string, error) {
	c, err := r.ReadCommit(commit)
	if err != nil {
		return nil, err
	}
	files, err := r.flatten(c.Tree)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the content of name as committed in commit.
func (r *Repository) ReadFile(commit object.Oid, name string) ([]byte, error) {
	c, err := r.ReadCommit(commit)
	if err != nil {
		return nil, err
	}
	tree := c.Tree
	parts := strings.Split(cleanPath(name), "/")
	for i, part := range parts {
		t, err := r.ReadTree(tree)
		if err != nil {
			return nil, err
		}
		entry, ok := t.Find(part)
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
		}
		if i == len(parts)-1 {
			if entry.Type != object.TypeBlob {
				return nil, fmt.Errorf("%s is not a file", name)
			}
			_, data, err := r.Objects.ReadObject(entry.Oid)
			return data, err
		}
		if entry.Type != object.TypeTree {
			return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
		}
		tree = entry.Oid
	}
	return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
}

// Checkout makes the worktree match HEAD. Files tracked by the commit
// previously checked out, from, that HEAD no longer has are removed. from
// may be empty for a fresh worktree.
func (r *Repository) Checkout(from object.Oid) error {
	head, err := r.Head()
	if err != nil {
		return err
	}
	c, err := r.ReadCommit(head)
	if err != nil {
		return err
	}
	files, err := r.flatten(c.Tree)
	if err != nil {
		return err
	}

	if from != "" {
		old, err := r.Files(from)
		if err != nil {
			return err
		}
		for _, name := range old {
			if _, ok := files[name]; ok {
				continue
			}
			if err := r.worktree.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing %s: %w", name, err)
			}
		}
	}

	for name, entry := range files {
		_, data, err := r.Objects.ReadObject(entry.Oid)
		if err != nil {
			return err
		}
		if dir := path.Dir(name); dir != "." {
			if err := r.worktree.MkdirAll(dir, 0o700); err != nil {
				return err
			}
		}
		perm := os.FileMode(0o600)
		if entry.Mode == object.ModeExecutable {
			perm = 0o700
		}
		if err := util.WriteFile(r.worktree, name, data, perm); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	r.Reset()
	r.log.Debugf("Checked out %s (%d files)", head, len(files))
	return nil
}
