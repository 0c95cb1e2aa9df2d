package vaults

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// registryFile holds the sealed registry at the manager root.
const registryFile = "registry.enc"

// Sealer encrypts data for this node. *keys.Manager implements it.
type Sealer interface {
	Encrypt(data []byte, recipient *rsa.PublicKey) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// RegistryEntry records one vault held by this node.
type RegistryEntry struct {
	Key     string    `toml:"key"`
	Created time.Time `toml:"created"`
	Origin  string    `toml:"origin,omitempty"`
}

func (e RegistryEntry) key() ([]byte, error) {
	return base64.StdEncoding.DecodeString(e.Key)
}

type registry struct {
	Vaults map[string]RegistryEntry `toml:"vaults"`
}

func loadRegistry(fs billy.Filesystem, sealer Sealer) (*registry, error) {
	reg := &registry{Vaults: map[string]RegistryEntry{}}
	sealed, err := util.ReadFile(fs, registryFile)
	if errors.Is(err, os.ErrNotExist) {
		return reg, nil
	}
	if err != nil {
		return nil, err
	}
	plain, err := sealer.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	if _, err := toml.Decode(string(plain), reg); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if reg.Vaults == nil {
		reg.Vaults = map[string]RegistryEntry{}
	}
	return reg, nil
}

func (r *registry) save(fs billy.Filesystem, sealer Sealer) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		return err
	}
	sealed, err := sealer.Encrypt(buf.Bytes(), nil)
	if err != nil {
		return fmt.Errorf("sealing registry: %w", err)
	}

	tmp, err := util.TempFile(fs, "", "registry_")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		_ = fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmp.Name())
		return err
	}
	return fs.Rename(tmp.Name(), registryFile)
}
