package configs

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Defaults for the [server] table.
const (
	DefaultListen        = "127.0.0.1:7878"
	DefaultRatePerMinute = 120
	DefaultBurst         = 20
)

type NodeConfig struct {
	Node   Node              `toml:"node"`
	Server ServerConfig      `toml:"server"`
	Peers  map[string]string `toml:"peers"`
}

type Node struct {
	UUID  string `toml:"node_uuid"`
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

type ServerConfig struct {
	Listen        string `toml:"listen"`
	RatePerMinute int    `toml:"rate_per_minute"`
	Burst         int    `toml:"burst"`
}

func defaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Server: ServerConfig{
			Listen:        DefaultListen,
			RatePerMinute: DefaultRatePerMinute,
			Burst:         DefaultBurst,
		},
		Peers: make(map[string]string),
	}
}

// LoadNodeConfig loads the node configuration. A missing file yields the
// defaults.
func LoadNodeConfig() (*NodeConfig, error) {
	configPath := StrongboxSettings.ConfigFile()
	config := defaultNodeConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	if err := LoadTOML(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load node config: %w", err)
	}
	if config.Peers == nil {
		config.Peers = make(map[string]string)
	}

	return config, nil
}

// SaveNodeConfig saves the node configuration.
func SaveNodeConfig(config *NodeConfig) error {
	if err := SaveTOML(StrongboxSettings.ConfigFile(), config); err != nil {
		return fmt.Errorf("failed to save node config: %w", err)
	}
	return nil
}

// GenerateNodeUUID generates a new UUID for the node.
func GenerateNodeUUID() string {
	return uuid.New().String()
}

// EnsureNodeConfig loads the node configuration, assigning and saving a
// UUID on first use.
func EnsureNodeConfig() (*NodeConfig, error) {
	config, err := LoadNodeConfig()
	if err != nil {
		return nil, err
	}

	if config.Node.UUID == "" {
		config.Node.UUID = GenerateNodeUUID()
		if err := SaveNodeConfig(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// PeerURL returns the base URL of a peer. Anything that already looks like
// a URL is returned unchanged.
func (c *NodeConfig) PeerURL(peer string) (string, bool) {
	if strings.HasPrefix(peer, "http://") || strings.HasPrefix(peer, "https://") {
		return strings.TrimSuffix(peer, "/"), true
	}
	u, ok := c.Peers[peer]
	return strings.TrimSuffix(u, "/"), ok
}
