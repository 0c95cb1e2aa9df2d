package cmd

import (
	"github.com/spf13/cobra"
)

// VaultsCmd groups the commands that manage whole vaults.
var VaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "Create, clone and manage vaults",
	Long: `Provides creation, cloning, pulling, renaming, sharing and destruction of
vaults, and shows their commit history.

Examples:
  strongbox vaults create prod
  strongbox vaults clone prod --from laptop
  strongbox vaults pull prod
  strongbox vaults log prod -n 5`,
}

func init() {
	VaultsCmd.AddCommand(vaultsCreateCmd)
	VaultsCmd.AddCommand(vaultsListCmd)
	VaultsCmd.AddCommand(vaultsDestroyCmd)
	VaultsCmd.AddCommand(vaultsRenameCmd)
	VaultsCmd.AddCommand(vaultsCloneCmd)
	VaultsCmd.AddCommand(vaultsPullCmd)
	VaultsCmd.AddCommand(vaultsShareCmd)
	VaultsCmd.AddCommand(vaultsUnshareCmd)
	VaultsCmd.AddCommand(vaultsLogCmd)
}

// resetVaultsCommandState resets the vaults commands' global state for testing.
func resetVaultsCommandState() {
	resetVaultsCreateState()
	resetVaultsListState()
	resetVaultsDestroyState()
	resetVaultsSyncState()
	resetVaultsShareState()
	resetVaultsLogState()
}
