package configs

import (
	"log"
	"os"
	"path/filepath"

	"github.com/PolarWolf314/strongbox/internal/utils"
)

// HomeEnv relocates every strongbox path below a single directory.
const HomeEnv = "STRONGBOX_HOME"

// NodeSettings holds the filesystem locations used by this node.
type NodeSettings struct {
	// KeysPath holds the node's RSA key pair.
	KeysPath string
	// ConfigPath holds config.toml.
	ConfigPath string
	// DataPath holds the vault registry, the vaults and the audit log.
	DataPath string
	Username string
}

var StrongboxSettings *NodeSettings

func init() {
	username, err := utils.GetUsername()
	if err != nil {
		log.Fatalf("error getting username: %s", err)
	}

	if home := os.Getenv(HomeEnv); home != "" {
		StrongboxSettings = SettingsForHome(home, username)
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("error getting home directory: %s", err)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatalf("error getting config directory: %s", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	StrongboxSettings = &NodeSettings{
		KeysPath:   filepath.Join(dataDir, "strongbox", "keys"),
		ConfigPath: filepath.Join(configDir, "strongbox"),
		DataPath:   filepath.Join(dataDir, "strongbox"),
		Username:   username,
	}
}

// SettingsForHome lays every path out below home.
func SettingsForHome(home, username string) *NodeSettings {
	return &NodeSettings{
		KeysPath:   filepath.Join(home, "keys"),
		ConfigPath: home,
		DataPath:   filepath.Join(home, "data"),
		Username:   username,
	}
}

// PrivateKeyPath is where the node's private key is stored.
func (s *NodeSettings) PrivateKeyPath() string {
	return filepath.Join(s.KeysPath, "node")
}

// PublicKeyPath is where the node's public key is stored.
func (s *NodeSettings) PublicKeyPath() string {
	return filepath.Join(s.KeysPath, "node.pub")
}

func (s *NodeSettings) ConfigFile() string {
	return filepath.Join(s.ConfigPath, "config.toml")
}

func (s *NodeSettings) AuditLogPath() string {
	return filepath.Join(s.DataPath, "audit.jsonl")
}
