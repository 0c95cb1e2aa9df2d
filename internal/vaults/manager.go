package vaults

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
	"github.com/PolarWolf314/strongbox/internal/git/repo"
	"github.com/PolarWolf314/strongbox/internal/keys"
)

// vaultsDir holds one directory per vault under the manager root.
const vaultsDir = "vaults"

// Manager owns every vault on a node.
type Manager struct {
	root   billy.Filesystem
	sealer Sealer
	opts   Options

	mu       sync.Mutex
	registry *registry
	open     map[string]*Vault
}

// NewManager loads the registry stored in root. sealer protects the
// registry; it is normally the node's *keys.Manager.
func NewManager(root billy.Filesystem, sealer Sealer, opts Options) (*Manager, error) {
	reg, err := loadRegistry(root, sealer)
	if err != nil {
		return nil, err
	}
	return &Manager{
		root:     root,
		sealer:   sealer,
		opts:     opts,
		registry: reg,
		open:     make(map[string]*Vault),
	}, nil
}

func vaultDir(name string) string {
	return path.Join(vaultsDir, name)
}

func (m *Manager) exists(name string) bool {
	if _, ok := m.registry.Vaults[name]; ok {
		return true
	}
	_, err := m.root.Stat(vaultDir(name))
	return err == nil
}

// register records name with key and persists the registry.
func (m *Manager) register(name string, key []byte, origin string) error {
	m.registry.Vaults[name] = RegistryEntry{
		Key:     base64.StdEncoding.EncodeToString(key),
		Created: time.Now().UTC().Truncate(time.Second),
		Origin:  origin,
	}
	if err := m.registry.save(m.root, m.sealer); err != nil {
		delete(m.registry.Vaults, name)
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

// discard removes whatever a failed create or clone left behind.
func (m *Manager) discard(name string) {
	if err := util.RemoveAll(m.root, vaultDir(name)); err != nil {
		m.opts.Log.Warnf("Could not remove %s: %v", vaultDir(name), err)
	}
	if _, ok := m.registry.Vaults[name]; ok {
		delete(m.registry.Vaults, name)
		if err := m.registry.save(m.root, m.sealer); err != nil {
			m.opts.Log.Warnf("Could not save registry: %v", err)
		}
	}
}

func (m *Manager) chroot(name string) (billy.Filesystem, error) {
	dir := vaultDir(name)
	if err := m.root.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return m.root.Chroot(dir)
}

// CreateVault creates an empty vault. A nil key is replaced by a random
// one. Anything created is removed again if a step fails.
func (m *Manager) CreateVault(name string, key []byte) (v *Vault, err error) {
	if err := ValidateVaultName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists(name) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrVaultExists, name)
	}
	if key == nil {
		if key, err = keys.GenerateSymmetricKey(name, ""); err != nil {
			return nil, err
		}
	}

	defer func() {
		if err != nil {
			m.discard(name)
		}
	}()
	if err := m.register(name, key, ""); err != nil {
		return nil, err
	}
	dir, err := m.chroot(name)
	if err != nil {
		return nil, err
	}
	v, err = Create(name, dir, key, m.opts)
	if err != nil {
		return nil, err
	}
	m.open[name] = v
	m.opts.Log.Debugf("Vault %s registered", name)
	return v, nil
}

// CloneVault copies a peer's vault. It fails with errors.ErrPeerNoVault
// when the peer advertises nothing for it.
func (m *Manager) CloneVault(ctx context.Context, name string, remote repo.Remote, origin string, progress io.Writer) (v *Vault, err error) {
	if err := ValidateVaultName(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists(name) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrVaultExists, name)
	}
	adv, err := remote.ListRefs(ctx)
	if err != nil {
		return nil, err
	}
	if len(adv.Refs) == 0 {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrPeerNoVault, name)
	}

	key, err := keys.GenerateSymmetricKey(name, "")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			m.discard(name)
		}
	}()
	if err := m.register(name, key, origin); err != nil {
		return nil, err
	}
	dir, err := m.chroot(name)
	if err != nil {
		return nil, err
	}
	v, err = Clone(ctx, name, dir, key, remote, progress, m.opts)
	if err != nil {
		return nil, err
	}
	m.open[name] = v
	m.opts.Log.Debugf("Cloned vault %s from %s", name, origin)
	return v, nil
}

// DestroyVault deletes a vault and its registry entry.
func (m *Manager) DestroyVault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists(name) {
		return fmt.Errorf("%w: %s", kerrors.ErrVaultNotFound, name)
	}
	delete(m.open, name)
	if err := util.RemoveAll(m.root, vaultDir(name)); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	delete(m.registry.Vaults, name)
	if err := m.registry.save(m.root, m.sealer); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	if _, err := m.root.Stat(vaultDir(name)); !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", kerrors.ErrVaultNotRemoved, name)
	}
	m.opts.Log.Debugf("Destroyed vault %s", name)
	return nil
}

// RenameVault moves a vault to a new name.
func (m *Manager) RenameVault(from, to string) error {
	if err := ValidateVaultName(to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.registry.Vaults[from]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrVaultNotFound, from)
	}
	if m.exists(to) {
		return fmt.Errorf("%w: %s", kerrors.ErrVaultExists, to)
	}
	if err := m.root.Rename(vaultDir(from), vaultDir(to)); err != nil {
		return fmt.Errorf("renaming %s: %w", from, err)
	}
	delete(m.open, from)
	delete(m.registry.Vaults, from)
	m.registry.Vaults[to] = entry
	if err := m.registry.save(m.root, m.sealer); err != nil {
		return fmt.Errorf("saving registry: %w", err)
	}
	return nil
}

// ListVaults returns the names of all vaults, sorted.
func (m *Manager) ListVaults() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.registry.Vaults))
	for name := range m.registry.Vaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry returns the registry record of a vault.
func (m *Manager) Entry(name string) (RegistryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.registry.Vaults[name]
	return e, ok
}

// GetVault opens a vault, reusing an already open instance.
func (m *Manager) GetVault(name string) (*Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.open[name]; ok {
		return v, nil
	}
	entry, ok := m.registry.Vaults[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrVaultNotFound, name)
	}
	key, err := entry.key()
	if err != nil {
		return nil, fmt.Errorf("registry key for %s: %w", name, err)
	}
	dir, err := m.root.Chroot(vaultDir(name))
	if err != nil {
		return nil, err
	}
	v, err := Open(name, dir, key, m.opts)
	if err != nil {
		return nil, err
	}
	m.open[name] = v
	return v, nil
}

// Repository implements protocol.Resolver.
func (m *Manager) Repository(vault string) (protocol.Repository, error) {
	v, err := m.GetVault(vault)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// PeerCanAccess implements protocol.Access. Unknown vaults are left to
// the resolver.
func (m *Manager) PeerCanAccess(vault, peer string) bool {
	v, err := m.GetVault(vault)
	if err != nil {
		return true
	}
	return v.PeerCanAccess(peer)
}

// Server returns an upload-pack server for this node's vaults.
func (m *Manager) Server(opts protocol.ServerOptions) *protocol.Server {
	if opts.Access == nil {
		opts.Access = m
	}
	return protocol.NewServer(m, opts, m.opts.Log)
}
