package vaults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/PolarWolf314/strongbox/internal/efs"
	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
	"github.com/PolarWolf314/strongbox/internal/git/repo"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// secretsDir holds one file per secret in the worktree.
const secretsDir = "secrets"

// Options configures how a vault records its history.
type Options struct {
	// Name and Email identify the committing node.
	Name  string
	Email string

	// Signer signs every commit when set.
	Signer repo.Signer

	// Now defaults to time.Now.
	Now func() time.Time

	Log logger.Logger
}

func (o Options) signature() object.Signature {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	name, email := o.Name, o.Email
	if name == "" {
		name = "strongbox"
	}
	if email == "" {
		email = "strongbox@localhost"
	}
	return object.NewSignature(name, email, now())
}

// Vault is one encrypted collection of secrets with its history.
type Vault struct {
	name string
	fs   *efs.FS
	repo *repo.Repository
	opts Options

	// mu serializes mutations.
	mu sync.Mutex

	cacheMu sync.RWMutex
	// secrets maps every known name to its content, nil until loaded.
	secrets map[string][]byte
}

func newVault(name string, fs *efs.FS, r *repo.Repository, opts Options) *Vault {
	return &Vault{
		name:    name,
		fs:      fs,
		repo:    r,
		opts:    opts,
		secrets: make(map[string][]byte),
	}
}

// Create initializes a vault in dir, sealed with key, and records the
// initial commit.
func Create(name string, dir billy.Filesystem, key []byte, opts Options) (*Vault, error) {
	fs, err := efs.New(dir, key)
	if err != nil {
		return nil, err
	}
	r, err := repo.Init(fs, opts.Log)
	if err != nil {
		return nil, err
	}
	v := newVault(name, fs, r, opts)
	if _, err := v.commit("Initialize vault: "+name, true); err != nil {
		return nil, fmt.Errorf("initial commit: %w", err)
	}
	opts.Log.Debugf("Created vault %s", name)
	return v, nil
}

// Open opens an existing vault in dir.
func Open(name string, dir billy.Filesystem, key []byte, opts Options) (*Vault, error) {
	fs, err := efs.New(dir, key)
	if err != nil {
		return nil, err
	}
	r, err := repo.Open(fs, opts.Log)
	if err != nil {
		return nil, err
	}
	// HEAD is always present, so reading it proves the key.
	if _, err := util.ReadFile(fs, fs.Join(repo.GitDir, "HEAD")); err != nil {
		return nil, fmt.Errorf("opening vault %s: %w", name, err)
	}
	v := newVault(name, fs, r, opts)
	if err := v.reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Clone copies a peer's vault into dir, sealing it with key.
func Clone(ctx context.Context, name string, dir billy.Filesystem, key []byte, remote repo.Remote, progress io.Writer, opts Options) (*Vault, error) {
	fs, err := efs.New(dir, key)
	if err != nil {
		return nil, err
	}
	r, err := repo.Clone(ctx, fs, remote, progress, opts.Log)
	if err != nil {
		return nil, err
	}
	v := newVault(name, fs, r, opts)
	if err := v.reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Name returns the vault's name.
func (v *Vault) Name() string {
	return v.name
}

// Repository exposes the vault's history.
func (v *Vault) Repository() *repo.Repository {
	return v.repo
}

func secretPath(name string) string {
	return secretsDir + "/" + name
}

func (v *Vault) commit(message string, allowEmpty bool) (object.Oid, error) {
	sig := v.opts.signature()
	return v.repo.Commit(repo.CommitOptions{
		Message:    message,
		Author:     sig,
		Committer:  sig,
		AllowEmpty: allowEmpty,
		Signer:     v.opts.Signer,
	})
}

func (v *Vault) known(name string) bool {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()
	_, ok := v.secrets[name]
	return ok
}

// AddSecret stores a new secret and commits it.
func (v *Vault) AddSecret(name string, content []byte) (object.Oid, error) {
	if err := ValidateSecretName(name); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.known(name) {
		return "", fmt.Errorf("%w: %s", kerrors.ErrSecretExists, name)
	}
	oid, err := v.writeAndCommit(name, content, nil, "Add secret: "+name, false)
	if err != nil {
		return "", err
	}
	v.opts.Log.Debugf("Added secret %s to %s", name, v.name)
	return oid, nil
}

// UpdateSecret replaces the content of an existing secret and commits it.
func (v *Vault) UpdateSecret(name string, content []byte) (object.Oid, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.known(name) {
		return "", fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
	}
	previous, err := util.ReadFile(v.fs, secretPath(name))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	oid, err := v.writeAndCommit(name, content, previous, "Update secret: "+name, true)
	if err != nil {
		return "", err
	}
	v.opts.Log.Debugf("Updated secret %s in %s", name, v.name)
	return oid, nil
}

// writeAndCommit writes content, commits it and only then caches it. On
// failure the file is restored to previous, or removed when nil. Updates
// pass allowEmpty so rewriting identical content still records a commit.
func (v *Vault) writeAndCommit(name string, content, previous []byte, message string, allowEmpty bool) (object.Oid, error) {
	p := secretPath(name)
	if dir := filepath.Dir(p); dir != "." {
		if err := v.fs.MkdirAll(dir, 0o700); err != nil {
			return "", err
		}
	}
	if err := util.WriteFile(v.fs, p, content, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}

	rollback := func() {
		v.repo.Reset()
		var err error
		if previous == nil {
			err = v.fs.Remove(p)
		} else {
			err = util.WriteFile(v.fs, p, previous, 0o600)
		}
		if err != nil {
			v.opts.Log.Warnf("Could not roll back %s: %v", name, err)
		}
	}
	if err := v.repo.Add(p); err != nil {
		rollback()
		return "", err
	}
	oid, err := v.commit(message, allowEmpty)
	if err != nil {
		rollback()
		return "", err
	}

	v.cacheMu.Lock()
	v.secrets[name] = append([]byte(nil), content...)
	v.cacheMu.Unlock()
	return oid, nil
}

// RemoveSecret deletes a secret and commits the removal.
func (v *Vault) RemoveSecret(name string) (object.Oid, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.known(name) {
		return "", fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
	}
	p := secretPath(name)
	previous, err := util.ReadFile(v.fs, p)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if err := v.repo.Remove(p); err != nil {
		return "", err
	}
	oid, err := v.commit("Remove secret: "+name, false)
	if err != nil {
		v.repo.Reset()
		if werr := util.WriteFile(v.fs, p, previous, 0o600); werr != nil {
			v.opts.Log.Warnf("Could not restore %s: %v", name, werr)
		}
		return "", err
	}

	v.cacheMu.Lock()
	delete(v.secrets, name)
	v.cacheMu.Unlock()
	v.opts.Log.Debugf("Removed secret %s from %s", name, v.name)
	return oid, nil
}

// GetSecret returns a secret's content, loading it on first use.
func (v *Vault) GetSecret(name string) ([]byte, error) {
	v.cacheMu.RLock()
	content, ok := v.secrets[name]
	v.cacheMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
	}
	if content != nil {
		return append([]byte(nil), content...), nil
	}

	data, err := util.ReadFile(v.fs, secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	v.cacheMu.Lock()
	if _, still := v.secrets[name]; still {
		v.secrets[name] = data
	}
	v.cacheMu.Unlock()
	return append([]byte(nil), data...), nil
}

// ListSecrets returns the names of all secrets, sorted.
func (v *Vault) ListSecrets() []string {
	v.cacheMu.RLock()
	names := make([]string, 0, len(v.secrets))
	for name := range v.secrets {
		names = append(names, name)
	}
	v.cacheMu.RUnlock()
	sort.Strings(names)
	return names
}

// ListSecretsMatching returns the secrets whose names match a doublestar
// glob such as "prod/**".
func (v *Vault) ListSecretsMatching(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	var out []string
	for _, name := range v.ListSecrets() {
		if ok, _ := doublestar.Match(pattern, name); ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// Pull fetches the peer's history, fast-forwards onto it and reloads the
// secret listing. It reports whether anything changed.
func (v *Vault) Pull(ctx context.Context, remote repo.Remote, progress io.Writer) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	moved, err := v.repo.Pull(ctx, remote, progress)
	if err != nil {
		return false, err
	}
	if err := v.reload(); err != nil {
		return moved, err
	}
	v.opts.Log.Debugf("Pulled vault %s (changed: %t)", v.name, moved)
	return moved, nil
}

// reload replaces the cache with the names found on disk. Contents are
// loaded lazily.
func (v *Vault) reload() error {
	names := map[string][]byte{}
	err := util.Walk(v.fs, secretsDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && p == secretsDir {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := strings.TrimPrefix(filepath.ToSlash(p), secretsDir+"/")
		names[name] = nil
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("listing secrets: %w", err)
	}

	v.cacheMu.Lock()
	v.secrets = names
	v.cacheMu.Unlock()
	return nil
}

// Log returns up to limit commits of the vault's history, newest first.
func (v *Vault) Log(limit int) ([]repo.LogEntry, error) {
	return v.repo.Log(limit)
}

// AdvertisedRefs implements protocol.Repository.
func (v *Vault) AdvertisedRefs() ([]protocol.Ref, map[string]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.repo.AdvertisedRefs()
}

// Pack implements protocol.Repository. The object set is fixed before the
// lock is released; streaming only reads immutable objects.
func (v *Vault) Pack(ctx context.Context, req *protocol.WantRequest) (io.ReadCloser, int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.repo.Pack(ctx, req)
}
