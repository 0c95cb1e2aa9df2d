package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PolarWolf314/strongbox/internal/configs"
)

// Operation names.
const (
	OpVaultCreate   = "vault.create"
	OpVaultClone    = "vault.clone"
	OpVaultDestroy  = "vault.destroy"
	OpVaultRename   = "vault.rename"
	OpVaultPull     = "vault.pull"
	OpVaultShare    = "vault.share"
	OpVaultUnshare  = "vault.unshare"
	OpSecretAdd     = "secret.add"
	OpSecretUpdate  = "secret.update"
	OpSecretRemove  = "secret.remove"
	OpSecretRead    = "secret.read"
	OpNodeInit      = "node.init"
	OpServerStarted = "server.start"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	Node      string `json:"node"` // Name of the acting node.
	NodeUUID  string `json:"uuid"`
	Operation string `json:"op"`

	Vault       string `json:"vault,omitempty"`
	Secret      string `json:"secret,omitempty"`
	Peer        string `json:"peer,omitempty"`        // For clone/pull.
	Commit      string `json:"commit,omitempty"`      // Commit recorded by the operation.
	Fingerprint string `json:"fingerprint,omitempty"` // For share/unshare.
	NewName     string `json:"new_name,omitempty"`    // For rename.
}

var mu sync.Mutex

// Log appends an entry to the audit log. Failures are ignored; an
// operation never fails because it could not be audited.
func Log(entry Entry) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(timestampLayout)
	}

	logPath := LogPath()
	if logPath == "" {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(data, '\n'))
}

// LogWithNode returns an entry for op with the node fields filled in from
// the node config.
func LogWithNode(op string) Entry {
	entry := Entry{Operation: op}

	config, err := configs.LoadNodeConfig()
	if err != nil {
		return entry
	}

	entry.Node = config.Node.Name
	entry.NodeUUID = config.Node.UUID
	return entry
}

// LogPath returns the path of the audit log, or "" when settings are not
// initialized.
func LogPath() string {
	if configs.StrongboxSettings == nil || configs.StrongboxSettings.DataPath == "" {
		return ""
	}
	return configs.StrongboxSettings.AuditLogPath()
}

// ReadEntries reads all entries from the audit log.
// Returns an empty slice if the log doesn't exist.
func ReadEntries() ([]Entry, error) {
	logPath := LogPath()
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries. Malformed lines
// are skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// ForVault returns the entries that concern vault, oldest first.
func ForVault(entries []Entry, vault string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Vault == vault {
			out = append(out, e)
		}
	}
	return out
}
