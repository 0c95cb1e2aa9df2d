// Package errors provides typed error values for strongbox.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. This makes
// error handling more robust and refactoring-safe.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Object errors: missing, shallow or corrupt objects (ErrReadObject, ErrHashMismatch)
//   - Ref errors: unresolvable references (ErrRefNotFound)
//   - Pack errors: malformed packfiles and indexes (ErrInvalidPackfile)
//   - Wire errors: malformed frames and remote failures (ErrMalformedPktLine, ErrRemote)
//   - Vault errors: precondition violations (ErrVaultExists, ErrSecretNotFound)
//   - Crypto errors: key and decryption failures (ErrDecryptFailed)
//
// # Usage
//
// Return errors from internal packages:
//
//	if !exists {
//	    return kerrors.ErrSecretNotFound
//	}
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("reading object %s: %w", oid, kerrors.ErrReadObject)
//
// Handle errors in the CLI layer:
//
//	if errors.Is(err, kerrors.ErrPeerNoVault) {
//	    // Show user-friendly message
//	}
package errors
