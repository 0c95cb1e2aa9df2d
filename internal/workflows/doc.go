// Package workflows provides high-level orchestration for strongbox commands.
//
// Workflows coordinate configs, keys, vaults and audit to implement
// complete user-facing features. Each workflow handles a single command's
// logic, independent of CLI concerns like flag parsing, spinners and
// output formatting.
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Loading the node configuration and identity
//   - Resolving peers and opening vaults
//   - Performing the operation
//   - Recording audit trail entries
//
// # Error Handling
//
// Workflows return sentinel errors from internal/errors, wrapped with
// context. Check them with errors.Is:
//
//	_, err := workflows.CloneVault(ctx, node, opts)
//	if errors.Is(err, kerrors.ErrPeerNoVault) {
//	    // suggest checking the vault name on the peer
//	}
//
// # Context Usage
//
// Every workflow takes a context.Context first. Network workflows (clone,
// pull, serve) honor its cancellation.
package workflows
