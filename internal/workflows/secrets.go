package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/strongbox/internal/audit"
	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/vaults"
)

// SecretResult names a secret and the commit that recorded the change.
type SecretResult struct {
	Vault  string
	Secret string
	Commit object.Oid
}

func secretAudit(op, vault, secret string, commit object.Oid) {
	entry := audit.LogWithNode(op)
	entry.Vault = vault
	entry.Secret = secret
	entry.Commit = string(commit)
	audit.Log(entry)
}

// AddSecret stores a new secret in a vault.
//
// Returns ErrSecretExists if the name is taken.
// Returns ErrInvalidSecretName for names that escape the vault.
func AddSecret(ctx context.Context, n *Node, vault, name string, value []byte) (*SecretResult, error) {
	v, err := n.Vaults.GetVault(vault)
	if err != nil {
		return nil, err
	}
	commit, err := v.AddSecret(name, value)
	if err != nil {
		return nil, err
	}
	secretAudit(audit.OpSecretAdd, vault, name, commit)
	return &SecretResult{Vault: vault, Secret: name, Commit: commit}, nil
}

// UpdateSecret replaces a secret's value.
//
// Returns ErrSecretNotFound if the secret does not exist.
func UpdateSecret(ctx context.Context, n *Node, vault, name string, value []byte) (*SecretResult, error) {
	v, err := n.Vaults.GetVault(vault)
	if err != nil {
		return nil, err
	}
	commit, err := v.UpdateSecret(name, value)
	if err != nil {
		return nil, err
	}
	secretAudit(audit.OpSecretUpdate, vault, name, commit)
	return &SecretResult{Vault: vault, Secret: name, Commit: commit}, nil
}

// RemoveSecret deletes a secret.
//
// Returns ErrSecretNotFound if the secret does not exist.
func RemoveSecret(ctx context.Context, n *Node, vault, name string) (*SecretResult, error) {
	v, err := n.Vaults.GetVault(vault)
	if err != nil {
		return nil, err
	}
	commit, err := v.RemoveSecret(name)
	if err != nil {
		return nil, err
	}
	secretAudit(audit.OpSecretRemove, vault, name, commit)
	return &SecretResult{Vault: vault, Secret: name, Commit: commit}, nil
}

// GetSecret returns a secret's value.
func GetSecret(ctx context.Context, n *Node, vault, name string) ([]byte, error) {
	v, err := n.Vaults.GetVault(vault)
	if err != nil {
		return nil, err
	}
	value, err := v.GetSecret(name)
	if err != nil {
		return nil, err
	}
	secretAudit(audit.OpSecretRead, vault, name, "")
	return value, nil
}

// ListSecrets lists a vault's secrets, optionally filtered by a glob.
func ListSecrets(ctx context.Context, n *Node, vault, pattern string) ([]string, error) {
	v, err := n.Vaults.GetVault(vault)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		return v.ListSecrets(), nil
	}
	return v.ListSecretsMatching(pattern)
}

// DiffSecret diffs a secret against an earlier commit. An empty from
// compares with the commit before HEAD.
func DiffSecret(ctx context.Context, n *Node, vault, name, from string) (string, error) {
	v, err := n.Vaults.GetVault(vault)
	if err != nil {
		return "", err
	}

	var base object.Oid
	if from == "" {
		log, err := v.Log(2)
		if err != nil {
			return "", err
		}
		if len(log) < 2 {
			return "", fmt.Errorf("vault %s has no earlier commit to diff against", vault)
		}
		base = log[1].Oid
	} else {
		if base, err = resolveCommit(v, from); err != nil {
			return "", err
		}
	}
	return v.DiffSecret(name, base)
}

// resolveCommit accepts a ref name, a full oid or an abbreviated oid of a
// commit in the vault's history.
func resolveCommit(v *vaults.Vault, rev string) (object.Oid, error) {
	if object.IsOid(rev) {
		return object.Oid(rev), nil
	}
	if resolved, err := v.Repository().Refs.Resolve(rev); err == nil {
		return object.ParseOid(resolved)
	}

	log, err := v.Log(0)
	if err != nil {
		return "", err
	}
	var match object.Oid
	for _, e := range log {
		if strings.HasPrefix(string(e.Oid), rev) {
			if match != "" {
				return "", fmt.Errorf("%w: %s is ambiguous", kerrors.ErrRefNotFound, rev)
			}
			match = e.Oid
		}
	}
	if match == "" || len(rev) < 4 {
		return "", fmt.Errorf("%w: %s", kerrors.ErrRefNotFound, rev)
	}
	return match, nil
}
