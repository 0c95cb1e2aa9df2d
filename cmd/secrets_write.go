package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var secretValue string

func init() {
	for _, c := range []*cobra.Command{secretsAddCmd, secretsUpdateCmd} {
		c.Flags().StringVar(&secretValue, "value", "", "secret value (read from stdin or prompted for when omitted)")
	}
}

func resetSecretsWriteState() {
	secretValue = ""
}

// readValue returns the --value flag, or reads the value from stdin.
func readValue(name string) ([]byte, error) {
	if secretValue != "" {
		return []byte(secretValue), nil
	}
	return utils.ReadSecretValue("Value for " + name + ": ")
}

var secretsAddCmd = &cobra.Command{
	Use:   "add <vault> <secret>",
	Short: "Add a new secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting secrets add command")
		return writeSecret(args[0], args[1], "Adding secret...", "Added", workflows.AddSecret)
	},
}

var secretsUpdateCmd = &cobra.Command{
	Use:   "update <vault> <secret>",
	Short: "Replace an existing secret's value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting secrets update command")
		return writeSecret(args[0], args[1], "Updating secret...", "Updated", workflows.UpdateSecret)
	},
}

type secretWriter func(ctx context.Context, n *workflows.Node, vault, name string, value []byte) (*workflows.SecretResult, error)

func writeSecret(vault, name, message, verb string, write secretWriter) error {
	value, err := readValue(name)
	if err != nil {
		return Logger.ErrorfAndReturn("Failed to read secret value: %v", err)
	}

	spinner, cleanup := startSpinner(message)
	defer cleanup()

	ctx := context.Background()
	n, err := loadNode(ctx)
	if err != nil {
		return fail(spinner, "Failed to load node", err)
	}
	result, err := write(ctx, n, vault, name, value)
	if err != nil {
		return fail(spinner, "Failed to write secret", err)
	}
	spinner.FinalMSG = ui.Success.Sprint("✓") + " " + verb + " " + ui.Highlight.Sprint(name) +
		" in " + ui.Highlight.Sprint(vault) + " " + ui.Muted.Sprint(ui.ShortOid(string(result.Commit)))
	return nil
}

var secretsRemoveCmd = &cobra.Command{
	Use:   "remove <vault> <secret>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting secrets remove command")
		spinner, cleanup := startSpinner("Removing secret...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		result, err := workflows.RemoveSecret(ctx, n, args[0], args[1])
		if err != nil {
			return fail(spinner, "Failed to remove secret", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Removed " + ui.Highlight.Sprint(args[1]) +
			" from " + ui.Highlight.Sprint(args[0]) + " " + ui.Muted.Sprint(ui.ShortOid(string(result.Commit)))
		return nil
	},
}
