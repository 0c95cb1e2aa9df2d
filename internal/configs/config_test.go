package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withHome(t *testing.T) *NodeSettings {
	t.Helper()
	old := StrongboxSettings
	StrongboxSettings = SettingsForHome(t.TempDir(), "tester")
	t.Cleanup(func() { StrongboxSettings = old })
	return StrongboxSettings
}

func TestGenerateNodeUUID(t *testing.T) {
	uuid := GenerateNodeUUID()
	if len(uuid) != 36 {
		t.Fatalf("Expected UUID length 36, got %d", len(uuid))
	}
	if uuid == GenerateNodeUUID() {
		t.Error("Expected distinct UUIDs")
	}
}

func TestSettingsForHome(t *testing.T) {
	s := SettingsForHome("/srv/strongbox", "tester")
	if s.PrivateKeyPath() != filepath.Join("/srv/strongbox", "keys", "node") {
		t.Errorf("PrivateKeyPath = %s", s.PrivateKeyPath())
	}
	if s.PublicKeyPath() != filepath.Join("/srv/strongbox", "keys", "node.pub") {
		t.Errorf("PublicKeyPath = %s", s.PublicKeyPath())
	}
	if s.ConfigFile() != filepath.Join("/srv/strongbox", "config.toml") {
		t.Errorf("ConfigFile = %s", s.ConfigFile())
	}
	if !strings.HasPrefix(s.AuditLogPath(), s.DataPath) {
		t.Errorf("AuditLogPath %s outside DataPath %s", s.AuditLogPath(), s.DataPath)
	}
}

func TestLoadNodeConfigDefaults(t *testing.T) {
	withHome(t)

	config, err := LoadNodeConfig()
	if err != nil {
		t.Fatalf("LoadNodeConfig failed: %v", err)
	}
	if config.Node.UUID != "" {
		t.Errorf("Expected empty UUID, got %q", config.Node.UUID)
	}
	if config.Server.Listen != DefaultListen {
		t.Errorf("Expected listen %q, got %q", DefaultListen, config.Server.Listen)
	}
	if config.Server.RatePerMinute != DefaultRatePerMinute || config.Server.Burst != DefaultBurst {
		t.Errorf("Unexpected rate defaults: %+v", config.Server)
	}
	if config.Peers == nil {
		t.Error("Expected Peers to be initialized")
	}
}

func TestSaveAndLoadNodeConfig(t *testing.T) {
	withHome(t)

	config := &NodeConfig{
		Node:   Node{UUID: "node-uuid-1", Name: "laptop", Email: "ops@example.com"},
		Server: ServerConfig{Listen: "0.0.0.0:9000", RatePerMinute: 30, Burst: 5},
		Peers:  map[string]string{"backup": "http://backup:7878/"},
	}
	if err := SaveNodeConfig(config); err != nil {
		t.Fatalf("SaveNodeConfig failed: %v", err)
	}

	loaded, err := LoadNodeConfig()
	if err != nil {
		t.Fatalf("LoadNodeConfig failed: %v", err)
	}
	if loaded.Node != config.Node {
		t.Errorf("Expected node %+v, got %+v", config.Node, loaded.Node)
	}
	if loaded.Server != config.Server {
		t.Errorf("Expected server %+v, got %+v", config.Server, loaded.Server)
	}

	url, ok := loaded.PeerURL("backup")
	if !ok || url != "http://backup:7878" {
		t.Errorf("PeerURL(backup) = %q, %t", url, ok)
	}
	if url, ok := loaded.PeerURL("https://elsewhere/"); !ok || url != "https://elsewhere" {
		t.Errorf("PeerURL(url) = %q, %t", url, ok)
	}
	if _, ok := loaded.PeerURL("unknown"); ok {
		t.Error("Expected unknown peer to be missing")
	}
}

func TestEnsureNodeConfig(t *testing.T) {
	settings := withHome(t)

	first, err := EnsureNodeConfig()
	if err != nil {
		t.Fatalf("EnsureNodeConfig failed: %v", err)
	}
	if first.Node.UUID == "" {
		t.Fatal("Expected a UUID to be generated")
	}
	if _, err := os.Stat(settings.ConfigFile()); err != nil {
		t.Fatalf("Config was not saved: %v", err)
	}

	second, err := EnsureNodeConfig()
	if err != nil {
		t.Fatal(err)
	}
	if second.Node.UUID != first.Node.UUID {
		t.Errorf("UUID changed from %q to %q", first.Node.UUID, second.Node.UUID)
	}
}

func TestLoadNodeConfigMalformed(t *testing.T) {
	settings := withHome(t)
	if err := os.MkdirAll(settings.ConfigPath, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(settings.ConfigFile(), []byte("[node\nbroken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadNodeConfig(); err == nil {
		t.Error("Expected error for malformed config")
	}
}
