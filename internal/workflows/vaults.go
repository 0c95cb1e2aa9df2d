package workflows

import (
	"context"
	"fmt"
	"io"

	"github.com/PolarWolf314/strongbox/internal/audit"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/keys"
	"github.com/PolarWolf314/strongbox/internal/vaults"
)

// CreateVaultOptions configures CreateVault.
type CreateVaultOptions struct {
	Name string

	// Passphrase derives the vault key instead of generating a random one.
	Passphrase string
}

// VaultResult names a vault and the commit an operation left it at.
type VaultResult struct {
	Name   string
	Commit object.Oid
}

// CreateVault creates an empty vault.
//
// Returns ErrVaultExists if the name is taken.
// Returns ErrInvalidVaultName if the name is not a valid directory name.
func CreateVault(ctx context.Context, n *Node, opts CreateVaultOptions) (*VaultResult, error) {
	var key []byte
	if opts.Passphrase != "" {
		var err error
		if key, err = keys.GenerateSymmetricKey(opts.Name, opts.Passphrase); err != nil {
			return nil, err
		}
	}

	v, err := n.Vaults.CreateVault(opts.Name, key)
	if err != nil {
		return nil, err
	}
	head, err := v.Repository().Head()
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithNode(audit.OpVaultCreate)
	entry.Vault = opts.Name
	entry.Commit = string(head)
	audit.Log(entry)

	return &VaultResult{Name: opts.Name, Commit: head}, nil
}

// CloneVaultOptions configures CloneVault.
type CloneVaultOptions struct {
	Name string
	Peer string

	// Progress receives the peer's progress messages.
	Progress io.Writer
}

// CloneVault copies a vault from a peer.
//
// Returns ErrPeerNoVault if the peer does not hold the vault.
// Returns ErrUnknownPeer if the peer is neither configured nor a URL.
func CloneVault(ctx context.Context, n *Node, opts CloneVaultOptions) (*VaultResult, error) {
	remote, err := n.Remote(opts.Peer, opts.Name)
	if err != nil {
		return nil, err
	}
	v, err := n.Vaults.CloneVault(ctx, opts.Name, remote, opts.Peer, opts.Progress)
	if err != nil {
		return nil, err
	}
	head, err := v.Repository().Head()
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithNode(audit.OpVaultClone)
	entry.Vault = opts.Name
	entry.Peer = opts.Peer
	entry.Commit = string(head)
	audit.Log(entry)

	return &VaultResult{Name: opts.Name, Commit: head}, nil
}

// PullVaultOptions configures PullVault.
type PullVaultOptions struct {
	Name string

	// Peer defaults to the peer the vault was cloned from.
	Peer     string
	Progress io.Writer
}

// PullResult contains the outcome of PullVault.
type PullResult struct {
	VaultResult
	Peer    string
	Changed bool
}

// PullVault fast-forwards a vault onto a peer's history.
//
// Returns ErrNonFastForward if the histories diverged.
func PullVault(ctx context.Context, n *Node, opts PullVaultOptions) (*PullResult, error) {
	v, err := n.Vaults.GetVault(opts.Name)
	if err != nil {
		return nil, err
	}
	peer := opts.Peer
	if peer == "" {
		entry, _ := n.Vaults.Entry(opts.Name)
		peer = entry.Origin
	}
	if peer == "" {
		return nil, fmt.Errorf("vault %s has no origin; pass a peer", opts.Name)
	}

	remote, err := n.Remote(peer, opts.Name)
	if err != nil {
		return nil, err
	}
	changed, err := v.Pull(ctx, remote, opts.Progress)
	if err != nil {
		return nil, err
	}
	head, err := v.Repository().Head()
	if err != nil {
		return nil, err
	}

	if changed {
		entry := audit.LogWithNode(audit.OpVaultPull)
		entry.Vault = opts.Name
		entry.Peer = peer
		entry.Commit = string(head)
		audit.Log(entry)
	}

	return &PullResult{VaultResult: VaultResult{Name: opts.Name, Commit: head}, Peer: peer, Changed: changed}, nil
}

// DestroyVault deletes a vault.
func DestroyVault(ctx context.Context, n *Node, name string) error {
	if err := n.Vaults.DestroyVault(name); err != nil {
		return err
	}
	entry := audit.LogWithNode(audit.OpVaultDestroy)
	entry.Vault = name
	audit.Log(entry)
	return nil
}

// RenameVault renames a vault.
func RenameVault(ctx context.Context, n *Node, from, to string) error {
	if err := n.Vaults.RenameVault(from, to); err != nil {
		return err
	}
	entry := audit.LogWithNode(audit.OpVaultRename)
	entry.Vault = from
	entry.NewName = to
	audit.Log(entry)
	return nil
}

// VaultSummary describes one vault in a listing.
type VaultSummary struct {
	Name    string
	Secrets int
	Origin  string
	Head    object.Oid
}

// ListVaults summarizes every vault on the node.
func ListVaults(ctx context.Context, n *Node) ([]VaultSummary, error) {
	var out []VaultSummary
	for _, name := range n.Vaults.ListVaults() {
		v, err := n.Vaults.GetVault(name)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		head, err := v.Repository().Head()
		if err != nil {
			return nil, err
		}
		entry, _ := n.Vaults.Entry(name)
		out = append(out, VaultSummary{
			Name:    name,
			Secrets: len(v.ListSecrets()),
			Origin:  entry.Origin,
			Head:    head,
		})
	}
	return out, nil
}

// ShareVault authorizes the public key stored at publicKeyPath and returns
// its fingerprint.
//
// Returns ErrKeyAlreadyShared if the key is already authorized.
func ShareVault(ctx context.Context, n *Node, name, publicKeyPath string) (string, error) {
	pub, err := keys.LoadPublicKey(publicKeyPath)
	if err != nil {
		return "", fmt.Errorf("loading public key: %w", err)
	}
	v, err := n.Vaults.GetVault(name)
	if err != nil {
		return "", err
	}
	fp, err := v.Share(pub)
	if err != nil {
		return "", err
	}
	entry := audit.LogWithNode(audit.OpVaultShare)
	entry.Vault = name
	entry.Fingerprint = fp
	audit.Log(entry)
	return fp, nil
}

// UnshareVault revokes a key by fingerprint.
//
// Returns ErrKeyNotShared if the key is not authorized.
func UnshareVault(ctx context.Context, n *Node, name, fingerprint string) error {
	v, err := n.Vaults.GetVault(name)
	if err != nil {
		return err
	}
	if err := v.Unshare(fingerprint); err != nil {
		return err
	}
	entry := audit.LogWithNode(audit.OpVaultUnshare)
	entry.Vault = name
	entry.Fingerprint = fingerprint
	audit.Log(entry)
	return nil
}

// SharedKeys lists the keys a vault is shared with.
func SharedKeys(ctx context.Context, n *Node, name string) ([]vaults.SharedKey, error) {
	v, err := n.Vaults.GetVault(name)
	if err != nil {
		return nil, err
	}
	return v.SharedKeys()
}

// HistoryEntry is one commit of a vault's history.
type HistoryEntry struct {
	Commit  object.Oid
	Author  string
	Time    string
	Message string
	Signed  bool
	// Verified is set when the signature checks out against this node's key.
	Verified bool
}

// VaultLog returns up to limit commits, newest first.
func VaultLog(ctx context.Context, n *Node, name string, limit int) ([]HistoryEntry, error) {
	v, err := n.Vaults.GetVault(name)
	if err != nil {
		return nil, err
	}
	log, err := v.Log(limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(log))
	for _, e := range log {
		h := HistoryEntry{
			Commit:  e.Oid,
			Author:  e.Commit.Author.Name,
			Time:    e.Commit.Author.Time().Format("2006-01-02 15:04:05"),
			Message: e.Commit.Message,
			Signed:  e.Commit.GPGSig != "",
		}
		if h.Signed {
			h.Verified = n.Keys.Verify(e.Commit.PayloadBytes(), []byte(e.Commit.GPGSig), nil) == nil
		}
		out = append(out, h)
	}
	return out, nil
}
