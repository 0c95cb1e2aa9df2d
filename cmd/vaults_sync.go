package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var (
	cloneFrom string
	pullFrom  string
)

func init() {
	vaultsCloneCmd.Flags().StringVar(&cloneFrom, "from", "", "peer name or base URL to clone from")
	_ = vaultsCloneCmd.MarkFlagRequired("from")
	vaultsPullCmd.Flags().StringVar(&pullFrom, "from", "", "peer name or base URL (defaults to where the vault was cloned from)")
}

func resetVaultsSyncState() {
	cloneFrom = ""
	pullFrom = ""
}

var vaultsCloneCmd = &cobra.Command{
	Use:   "clone <name> --from <peer>",
	Short: "Copy a vault from a peer",
	Long: `Fetches a vault's full history from a peer and stores it under a fresh
local key. The peer is remembered so that 'strongbox vaults pull' needs
no --from.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults clone command")
		spinner, cleanup := startSpinner("Cloning vault...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		result, err := workflows.CloneVault(ctx, n, workflows.CloneVaultOptions{
			Name:     args[0],
			Peer:     cloneFrom,
			Progress: progressOutput(),
		})
		if err != nil {
			return fail(spinner, "Failed to clone vault", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Cloned vault " + ui.Highlight.Sprint(result.Name) +
			" from " + ui.Highlight.Sprint(cloneFrom) + " at " + ui.Oid.Sprint(ui.ShortOid(string(result.Commit)))
		return nil
	},
}

var vaultsPullCmd = &cobra.Command{
	Use:   "pull <name>",
	Short: "Fast-forward a vault onto a peer's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults pull command")
		spinner, cleanup := startSpinner("Pulling vault...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		result, err := workflows.PullVault(ctx, n, workflows.PullVaultOptions{
			Name:     args[0],
			Peer:     pullFrom,
			Progress: progressOutput(),
		})
		if err != nil {
			return fail(spinner, "Failed to pull vault", err)
		}
		if !result.Changed {
			spinner.FinalMSG = ui.Success.Sprint("✓") + " Vault " + ui.Highlight.Sprint(result.Name) + " is already up to date with " + ui.Highlight.Sprint(result.Peer)
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Pulled vault " + ui.Highlight.Sprint(result.Name) +
			" from " + ui.Highlight.Sprint(result.Peer) + ", now at " + ui.Oid.Sprint(ui.ShortOid(string(result.Commit)))
		return nil
	},
}
