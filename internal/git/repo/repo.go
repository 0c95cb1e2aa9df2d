package repo

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/refs"
	"github.com/PolarWolf314/strongbox/internal/git/store"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// GitDir is the repository directory inside the worktree.
const GitDir = ".git"

// Repository is a worktree plus its object store and refs.
type Repository struct {
	worktree billy.Filesystem
	gitdir   billy.Filesystem

	Objects *store.Store
	Refs    *refs.Manager

	log logger.Logger

	mu     sync.Mutex
	staged map[string]*object.Oid
}

func newRepository(worktree, gitdir billy.Filesystem, log logger.Logger) *Repository {
	return &Repository{
		worktree: worktree,
		gitdir:   gitdir,
		Objects:  store.New(gitdir, log),
		Refs:     refs.New(gitdir),
		log:      log,
		staged:   make(map[string]*object.Oid),
	}
}

// Init creates an empty repository in fs with HEAD on master.
func Init(fs billy.Filesystem, log logger.Logger) (*Repository, error) {
	if _, err := fs.Stat(GitDir); err == nil {
		return nil, fmt.Errorf("repository already exists at %s", fs.Join(fs.Root(), GitDir))
	}
	for _, dir := range []string{"objects/pack", "refs/heads", "refs/tags"} {
		if err := fs.MkdirAll(fs.Join(GitDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	gitdir, err := fs.Chroot(GitDir)
	if err != nil {
		return nil, err
	}
	r := newRepository(fs, gitdir, log)
	if err := r.Refs.WriteSymbolic(refs.HEAD, refs.Master); err != nil {
		return nil, fmt.Errorf("writing HEAD: %w", err)
	}
	log.Debugf("Initialized repository in %s", fs.Root())
	return r, nil
}

// Open opens the repository in fs.
func Open(fs billy.Filesystem, log logger.Logger) (*Repository, error) {
	if _, err := fs.Stat(fs.Join(GitDir, refs.HEAD)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no repository at %s", fs.Root())
		}
		return nil, err
	}
	gitdir, err := fs.Chroot(GitDir)
	if err != nil {
		return nil, err
	}
	return newRepository(fs, gitdir, log), nil
}

// Worktree returns the filesystem holding checked out files.
func (r *Repository) Worktree() billy.Filesystem {
	return r.worktree
}

// GitDir returns the filesystem holding repository data.
func (r *Repository) GitDir() billy.Filesystem {
	return r.gitdir
}

// Head returns the commit HEAD points at. It fails with
// errors.ErrRefNotFound before the first commit.
func (r *Repository) Head() (object.Oid, error) {
	resolved, err := r.Refs.Resolve(refs.HEAD)
	if err != nil {
		return "", err
	}
	return object.ParseOid(resolved)
}

func (r *Repository) headOrZero() (object.Oid, error) {
	head, err := r.Head()
	if errors.Is(err, kerrors.ErrRefNotFound) {
		return "", nil
	}
	return head, err
}

// ReadCommit loads and parses a commit.
func (r *Repository) ReadCommit(oid object.Oid) (*object.Commit, error) {
	typ, data, err := r.Objects.ReadObject(oid)
	if err != nil {
		return nil, err
	}
	if typ != object.TypeCommit {
		return nil, fmt.Errorf("%w: %s is a %s, not a commit", kerrors.ErrInvalidObject, oid, typ)
	}
	return object.CommitFromBytes(data)
}

// ReadTree loads and parses a tree.
func (r *Repository) ReadTree(oid object.Oid) (*object.Tree, error) {
	typ, data, err := r.Objects.ReadObject(oid)
	if err != nil {
		return nil, err
	}
	if typ != object.TypeTree {
		return nil, fmt.Errorf("%w: %s is a %s, not a tree", kerrors.ErrInvalidObject, oid, typ)
	}
	return object.TreeFromBytes(data)
}
