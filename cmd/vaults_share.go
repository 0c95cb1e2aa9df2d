package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var shareList bool

func init() {
	vaultsShareCmd.Flags().BoolVarP(&shareList, "list", "l", false, "list the keys the vault is shared with")
}

func resetVaultsShareState() {
	shareList = false
}

var vaultsShareCmd = &cobra.Command{
	Use:   "share <name> [public-key-file]",
	Short: "Share a vault with another node's public key",
	Long: `Authorizes a public key (PEM or OpenSSH authorized_keys format) for a vault.

Examples:
  strongbox vaults share prod ~/bob.pub
  strongbox vaults share prod --list`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults share command")
		ctx := context.Background()
		name := args[0]

		if shareList || len(args) == 1 {
			return listSharedKeys(ctx, name)
		}

		spinner, cleanup := startSpinner("Sharing vault...")
		defer cleanup()

		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		fp, err := workflows.ShareVault(ctx, n, name, args[1])
		if err != nil {
			return fail(spinner, "Failed to share vault", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Shared vault " + ui.Highlight.Sprint(name) + " with " + ui.Oid.Sprint(fp)
		return nil
	},
}

func listSharedKeys(ctx context.Context, name string) error {
	n, err := loadNode(ctx)
	if err != nil {
		fmt.Println(formatError("Failed to load node", err))
		if isUnexpectedError(err) {
			return err
		}
		return nil
	}
	shared, err := workflows.SharedKeys(ctx, n, name)
	if err != nil {
		fmt.Println(formatError("Failed to list shared keys", err))
		if isUnexpectedError(err) {
			return err
		}
		return nil
	}
	if len(shared) == 0 {
		fmt.Println("Vault " + ui.Highlight.Sprint(name) + " is not shared with any keys.")
		return nil
	}
	for _, k := range shared {
		fmt.Printf("%s  %s\n", ui.Oid.Sprint(k.Fingerprint), ui.Muted.Sprint("added "+k.Added.Format("2006-01-02")))
	}
	return nil
}

var vaultsUnshareCmd = &cobra.Command{
	Use:   "unshare <name> <fingerprint>",
	Short: "Revoke a public key's access to a vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults unshare command")
		spinner, cleanup := startSpinner("Revoking key...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		if err := workflows.UnshareVault(ctx, n, args[0], args[1]); err != nil {
			return fail(spinner, "Failed to unshare vault", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Revoked " + ui.Oid.Sprint(args[1]) + " from vault " + ui.Highlight.Sprint(args[0])
		return nil
	},
}
