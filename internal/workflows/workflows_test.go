package workflows

import (
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/strongbox/internal/audit"
	"github.com/PolarWolf314/strongbox/internal/configs"
	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
	"github.com/PolarWolf314/strongbox/internal/utils"
)

// setupNode initializes a node under a fresh STRONGBOX_HOME and loads it.
// The settings stay pointed at this node until the test ends or the next
// setupNode call.
func setupNode(t *testing.T, name string) *Node {
	t.Helper()
	original := configs.StrongboxSettings
	configs.StrongboxSettings = configs.SettingsForHome(t.TempDir(), "tester")
	t.Cleanup(func() { configs.StrongboxSettings = original })

	ctx := context.Background()
	email := utils.SanitizeNodeName(name) + "@example.com"
	if _, err := InitNode(ctx, InitNodeOptions{Name: name, Email: email}); err != nil {
		t.Fatalf("InitNode(%s) failed: %v", name, err)
	}
	n, err := LoadNode(ctx, LoadOptions{Log: logger.Logger{}})
	if err != nil {
		t.Fatalf("LoadNode(%s) failed: %v", name, err)
	}
	return n
}

func TestInitNode(t *testing.T) {
	n := setupNode(t, "Node A")
	ctx := context.Background()

	if n.Config.Node.Name != "node-a" {
		t.Errorf("Expected sanitized name node-a, got %q", n.Config.Node.Name)
	}
	if n.Config.Node.Email != "node-a@example.com" {
		t.Errorf("Expected email node-a@example.com, got %q", n.Config.Node.Email)
	}
	if n.Config.Node.UUID == "" {
		t.Error("Expected a node UUID")
	}

	if _, err := InitNode(ctx, InitNodeOptions{Name: "again"}); !errors.Is(err, kerrors.ErrNodeAlreadyInitialized) {
		t.Errorf("Expected ErrNodeAlreadyInitialized, got %v", err)
	}
	if _, err := InitNode(ctx, InitNodeOptions{Email: "not-an-email", Force: true}); !errors.Is(err, kerrors.ErrInvalidEmail) {
		t.Errorf("Expected ErrInvalidEmail, got %v", err)
	}

	info, err := ShowNode(ctx, n)
	if err != nil {
		t.Fatalf("ShowNode failed: %v", err)
	}
	if !strings.HasPrefix(info.Fingerprint, "SHA256:") || !strings.Contains(info.PublicKey, "PUBLIC KEY") {
		t.Errorf("Unexpected node info: %+v", info)
	}
}

func TestLoadNodeNotInitialized(t *testing.T) {
	original := configs.StrongboxSettings
	configs.StrongboxSettings = configs.SettingsForHome(t.TempDir(), "tester")
	defer func() { configs.StrongboxSettings = original }()

	if _, err := LoadNode(context.Background(), LoadOptions{}); !errors.Is(err, kerrors.ErrNodeNotInitialized) {
		t.Errorf("Expected ErrNodeNotInitialized, got %v", err)
	}
}

func TestSecretWorkflows(t *testing.T) {
	n := setupNode(t, "node-a")
	ctx := context.Background()

	created, err := CreateVault(ctx, n, CreateVaultOptions{Name: "secrets-1"})
	if err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}
	if !created.Commit.IsValid() {
		t.Errorf("Expected an initial commit, got %q", created.Commit)
	}

	if _, err := AddSecret(ctx, n, "secrets-1", "db-pass", []byte("hunter2\n")); err != nil {
		t.Fatalf("AddSecret failed: %v", err)
	}
	if _, err := UpdateSecret(ctx, n, "secrets-1", "db-pass", []byte("hunter3\n")); err != nil {
		t.Fatalf("UpdateSecret failed: %v", err)
	}
	value, err := GetSecret(ctx, n, "secrets-1", "db-pass")
	if err != nil || string(value) != "hunter3\n" {
		t.Errorf("GetSecret = %q, %v", value, err)
	}

	diff, err := DiffSecret(ctx, n, "secrets-1", "db-pass", "")
	if err != nil {
		t.Fatalf("DiffSecret failed: %v", err)
	}
	if !strings.Contains(diff, "-hunter2") || !strings.Contains(diff, "+hunter3") {
		t.Errorf("Unexpected diff:\n%s", diff)
	}

	history, err := VaultLog(ctx, n, "secrets-1", 0)
	if err != nil {
		t.Fatalf("VaultLog failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 commits, got %d", len(history))
	}
	for _, h := range history {
		if !h.Signed || !h.Verified {
			t.Errorf("Commit %s is not signed and verified", h.Commit)
		}
	}

	short := string(history[2].Commit)[:7]
	if _, err := DiffSecret(ctx, n, "secrets-1", "db-pass", short); err != nil {
		t.Errorf("DiffSecret against %s failed: %v", short, err)
	}

	names, err := ListSecrets(ctx, n, "secrets-1", "db-*")
	if err != nil || !reflect.DeepEqual(names, []string{"db-pass"}) {
		t.Errorf("ListSecrets = %v, %v", names, err)
	}

	if _, err := RemoveSecret(ctx, n, "secrets-1", "db-pass"); err != nil {
		t.Fatalf("RemoveSecret failed: %v", err)
	}
	if _, err := GetSecret(ctx, n, "secrets-1", "db-pass"); !errors.Is(err, kerrors.ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}

	entries, err := audit.ReadEntries()
	if err != nil {
		t.Fatal(err)
	}
	var ops []string
	for _, e := range audit.ForVault(entries, "secrets-1") {
		ops = append(ops, e.Operation)
	}
	want := []string{audit.OpVaultCreate, audit.OpSecretAdd, audit.OpSecretUpdate, audit.OpSecretRead, audit.OpSecretRemove}
	if !reflect.DeepEqual(ops, want) {
		t.Errorf("Audit ops = %v, want %v", ops, want)
	}
}

func TestPassphraseVaultKeys(t *testing.T) {
	n := setupNode(t, "node-a")
	ctx := context.Background()
	if _, err := CreateVault(ctx, n, CreateVaultOptions{Name: "derived", Passphrase: "correct horse"}); err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}
	summaries, err := ListVaults(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].Name != "derived" || summaries[0].Secrets != 0 {
		t.Errorf("ListVaults = %+v", summaries)
	}
}

func TestCloneAndPullBetweenNodes(t *testing.T) {
	ctx := context.Background()
	a := setupNode(t, "node-a")
	if _, err := CreateVault(ctx, a, CreateVaultOptions{Name: "secrets-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := AddSecret(ctx, a, "secrets-1", "db-pass", []byte("hunter2")); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(a.Vaults.Server(protocol.ServerOptions{}))
	defer srv.Close()

	b := setupNode(t, "node-b")
	if err := AddPeer(ctx, b, "a", srv.URL); err != nil {
		t.Fatalf("AddPeer failed: %v", err)
	}

	if _, err := CloneVault(ctx, b, CloneVaultOptions{Name: "missing", Peer: "a"}); !errors.Is(err, kerrors.ErrPeerNoVault) {
		t.Errorf("Expected ErrPeerNoVault, got %v", err)
	}
	if _, err := CloneVault(ctx, b, CloneVaultOptions{Name: "secrets-1", Peer: "nowhere"}); !errors.Is(err, kerrors.ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}

	if _, err := CloneVault(ctx, b, CloneVaultOptions{Name: "secrets-1", Peer: "a"}); err != nil {
		t.Fatalf("CloneVault failed: %v", err)
	}
	value, err := GetSecret(ctx, b, "secrets-1", "db-pass")
	if err != nil || string(value) != "hunter2" {
		t.Errorf("GetSecret on clone = %q, %v", value, err)
	}

	if _, err := AddSecret(ctx, a, "secrets-1", "api-key", []byte("abc")); err != nil {
		t.Fatal(err)
	}
	pulled, err := PullVault(ctx, b, PullVaultOptions{Name: "secrets-1"})
	if err != nil {
		t.Fatalf("PullVault failed: %v", err)
	}
	if !pulled.Changed || pulled.Peer != "a" {
		t.Errorf("Unexpected pull result: %+v", pulled)
	}
	names, _ := ListSecrets(ctx, b, "secrets-1", "")
	if !reflect.DeepEqual(names, []string{"api-key", "db-pass"}) {
		t.Errorf("ListSecrets after pull = %v", names)
	}

	// Histories diverge once both sides commit.
	if _, err := AddSecret(ctx, b, "secrets-1", "local", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := AddSecret(ctx, a, "secrets-1", "remote", []byte("y")); err != nil {
		t.Fatal(err)
	}
	if _, err := PullVault(ctx, b, PullVaultOptions{Name: "secrets-1"}); !errors.Is(err, kerrors.ErrNonFastForward) {
		t.Errorf("Expected ErrNonFastForward, got %v", err)
	}
}

func TestShareWorkflow(t *testing.T) {
	n := setupNode(t, "node-a")
	ctx := context.Background()
	if _, err := CreateVault(ctx, n, CreateVaultOptions{Name: "shared"}); err != nil {
		t.Fatal(err)
	}
	pubPath := configs.StrongboxSettings.PublicKeyPath()

	fp, err := ShareVault(ctx, n, "shared", pubPath)
	if err != nil {
		t.Fatalf("ShareVault failed: %v", err)
	}
	if _, err := ShareVault(ctx, n, "shared", pubPath); !errors.Is(err, kerrors.ErrKeyAlreadyShared) {
		t.Errorf("Expected ErrKeyAlreadyShared, got %v", err)
	}
	keys, err := SharedKeys(ctx, n, "shared")
	if err != nil || len(keys) != 1 || keys[0].Fingerprint != fp {
		t.Errorf("SharedKeys = %+v, %v", keys, err)
	}
	if err := UnshareVault(ctx, n, "shared", fp); err != nil {
		t.Fatalf("UnshareVault failed: %v", err)
	}
	if err := UnshareVault(ctx, n, "shared", fp); !errors.Is(err, kerrors.ErrKeyNotShared) {
		t.Errorf("Expected ErrKeyNotShared, got %v", err)
	}
}

func TestRenameAndDestroyWorkflows(t *testing.T) {
	n := setupNode(t, "node-a")
	ctx := context.Background()
	if _, err := CreateVault(ctx, n, CreateVaultOptions{Name: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := RenameVault(ctx, n, "old", "new"); err != nil {
		t.Fatalf("RenameVault failed: %v", err)
	}
	if err := DestroyVault(ctx, n, "new"); err != nil {
		t.Fatalf("DestroyVault failed: %v", err)
	}
	if err := DestroyVault(ctx, n, "new"); !errors.Is(err, kerrors.ErrVaultNotFound) {
		t.Errorf("Expected ErrVaultNotFound, got %v", err)
	}
}

func TestServe(t *testing.T) {
	n := setupNode(t, "node-a")
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, n, ServeOptions{Listen: "127.0.0.1:0", Ready: func(addr string) { ready <- addr }})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("Serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not start")
	}

	client := protocol.NewClient(protocol.NewHTTPTransport(logger.Logger{}), "http://"+addr, "probe", logger.Logger{})
	adv, err := client.Remote("nothing-here").ListRefs(ctx)
	if err != nil {
		t.Fatalf("ListRefs failed: %v", err)
	}
	if len(adv.Refs) != 0 {
		t.Errorf("Expected an empty advertisement, got %v", adv.Refs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not shut down")
	}
}
