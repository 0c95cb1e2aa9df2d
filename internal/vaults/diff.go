package vaults

import (
	"errors"
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

// DiffSecret returns a unified diff of a secret between commit from and
// its current content. A secret missing on either side diffs as empty.
func (v *Vault) DiffSecret(name string, from object.Oid) (string, error) {
	old, err := v.repo.ReadFile(from, secretPath(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	current, err := v.GetSecret(name)
	if err != nil && !errors.Is(err, kerrors.ErrSecretNotFound) {
		return "", err
	}
	if old == nil && current == nil {
		return "", fmt.Errorf("%w: %s", kerrors.ErrSecretNotFound, name)
	}

	short := string(from)
	if len(short) > 7 {
		short = short[:7]
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(current)),
		FromFile: name + "@" + short,
		ToFile:   name,
		Context:  3,
	})
}
