package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var createPassphrase bool

func init() {
	vaultsCreateCmd.Flags().BoolVarP(&createPassphrase, "passphrase", "p", false, "derive the vault key from a passphrase instead of generating one")
}

func resetVaultsCreateState() {
	createPassphrase = false
}

var vaultsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty vault",
	Long: `Creates an empty vault with a fresh key and an initial commit.

With --passphrase the key is derived from a passphrase read from the
terminal, so the same vault key can be recovered on another machine.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults create command")
		name := args[0]

		var passphrase string
		if createPassphrase {
			p, err := utils.ReadNewPassphrase("Vault passphrase: ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to read passphrase: %v", err)
			}
			passphrase = string(p)
		}

		spinner, cleanup := startSpinner("Creating vault...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		result, err := workflows.CreateVault(ctx, n, workflows.CreateVaultOptions{Name: name, Passphrase: passphrase})
		if err != nil {
			return fail(spinner, "Failed to create vault", err)
		}

		spinner.FinalMSG = ui.Success.Sprint("✓") + " Created vault " + ui.Highlight.Sprint(result.Name) +
			" at " + ui.Oid.Sprint(ui.ShortOid(string(result.Commit))) + "\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("strongbox secrets add "+result.Name+" <secret>") + " to store a secret"
		return nil
	},
}
