package audit

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/strongbox/internal/configs"
)

func withSettings(t *testing.T) {
	t.Helper()
	original := configs.StrongboxSettings
	configs.StrongboxSettings = configs.SettingsForHome(t.TempDir(), "tester")
	t.Cleanup(func() { configs.StrongboxSettings = original })
}

func TestLog_CreatesFileAndAppends(t *testing.T) {
	withSettings(t)

	Log(Entry{Node: "node-a", NodeUUID: "uuid-a", Operation: OpVaultCreate, Vault: "secrets-1"})
	Log(Entry{Node: "node-a", NodeUUID: "uuid-a", Operation: OpSecretAdd, Vault: "secrets-1", Secret: "db-pass", Commit: "abc1234"})

	if _, err := os.Stat(LogPath()); err != nil {
		t.Fatalf("Audit log file was not created: %v", err)
	}

	entries, err := ReadEntries()
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Operation != OpVaultCreate || entries[1].Operation != OpSecretAdd {
		t.Errorf("Unexpected operations: %q, %q", entries[0].Operation, entries[1].Operation)
	}
	if entries[1].Secret != "db-pass" || entries[1].Commit != "abc1234" {
		t.Errorf("Unexpected entry: %+v", entries[1])
	}
}

func TestLog_TimestampFormat(t *testing.T) {
	withSettings(t)

	Log(Entry{Operation: OpVaultPull})
	entries, err := ReadEntries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadEntries = %v, %v", entries, err)
	}
	ts, err := time.Parse(timestampLayout, entries[0].Timestamp)
	if err != nil {
		t.Fatalf("Timestamp %q does not parse: %v", entries[0].Timestamp, err)
	}
	if time.Since(ts) > time.Minute {
		t.Errorf("Timestamp %v is not recent", ts)
	}
}

func TestLog_OmitsEmptyFields(t *testing.T) {
	withSettings(t)

	Log(Entry{Node: "node-a", Operation: OpVaultDestroy, Vault: "old"})
	data, err := os.ReadFile(LogPath())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &raw); err != nil {
		t.Fatalf("Entry is not valid JSON: %v", err)
	}
	for _, key := range []string{"secret", "peer", "commit", "fingerprint", "new_name"} {
		if _, ok := raw[key]; ok {
			t.Errorf("Expected %q to be omitted", key)
		}
	}
	for _, key := range []string{"ts", "node", "uuid", "op", "vault"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected %q to be present", key)
		}
	}
}

func TestLog_NoSettings(t *testing.T) {
	original := configs.StrongboxSettings
	configs.StrongboxSettings = nil
	defer func() { configs.StrongboxSettings = original }()

	Log(Entry{Operation: OpVaultCreate})
	if LogPath() != "" {
		t.Error("Expected empty LogPath without settings")
	}
	entries, err := ReadEntries()
	if err != nil || entries != nil {
		t.Errorf("ReadEntries = %v, %v", entries, err)
	}
}

func TestParseEntries(t *testing.T) {
	data := []byte(`{"ts":"2024-01-15T10:30:00.000000Z","node":"a","uuid":"u","op":"vault.create","vault":"v1"}
not json
{"ts":"2024-01-15T10:31:00.000000Z","node":"a","uuid":"u","op":"secret.add","vault":"v2","secret":"s"}

`)
	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if got := ForVault(entries, "v2"); len(got) != 1 || got[0].Secret != "s" {
		t.Errorf("ForVault = %+v", got)
	}

	if entries, _ := ParseEntries(nil); len(entries) != 0 {
		t.Errorf("Expected no entries for empty data, got %d", len(entries))
	}
}

func TestLogWithNode(t *testing.T) {
	withSettings(t)
	config := &configs.NodeConfig{Node: configs.Node{UUID: "uuid-a", Name: "node-a"}}
	if err := configs.SaveNodeConfig(config); err != nil {
		t.Fatal(err)
	}
	entry := LogWithNode(OpVaultShare)
	if entry.Node != "node-a" || entry.NodeUUID != "uuid-a" || entry.Operation != OpVaultShare {
		t.Errorf("LogWithNode = %+v", entry)
	}
}
