package cmd

import (
	"github.com/spf13/cobra"
)

// SecretsCmd groups the commands that read and write secrets in a vault.
var SecretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Store and read secrets in a vault",
	Long: `Provides adding, updating, reading, removing, listing and diffing of the
secrets in a vault. Every change is a signed commit in the vault's history.

Examples:
  echo -n hunter2 | strongbox secrets add prod db/password
  strongbox secrets get prod db/password
  strongbox secrets list prod 'db/**'
  strongbox secrets diff prod db/password`,
}

func init() {
	SecretsCmd.AddCommand(secretsAddCmd)
	SecretsCmd.AddCommand(secretsUpdateCmd)
	SecretsCmd.AddCommand(secretsGetCmd)
	SecretsCmd.AddCommand(secretsRemoveCmd)
	SecretsCmd.AddCommand(secretsListCmd)
	SecretsCmd.AddCommand(secretsDiffCmd)
}

// resetSecretsCommandState resets the secrets commands' global state for testing.
func resetSecretsCommandState() {
	resetSecretsWriteState()
	resetSecretsReadState()
}
