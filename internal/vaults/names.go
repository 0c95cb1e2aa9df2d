package vaults

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

var vaultNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateVaultName checks that name is usable as a directory and URL
// path segment.
func ValidateVaultName(name string) error {
	if !vaultNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", kerrors.ErrInvalidVaultName, name)
	}
	return nil
}

// ValidateSecretName checks that name is a relative slash separated path
// with no hidden or parent segments.
func ValidateSecretName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: %q", kerrors.ErrInvalidSecretName, name)
	}
	if path.Clean(name) != name || path.IsAbs(name) {
		return fmt.Errorf("%w: %q", kerrors.ErrInvalidSecretName, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || strings.HasPrefix(part, ".") {
			return fmt.Errorf("%w: %q", kerrors.ErrInvalidSecretName, name)
		}
	}
	return nil
}
