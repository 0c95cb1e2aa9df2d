package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var destroyForce bool

func init() {
	vaultsDestroyCmd.Flags().BoolVarP(&destroyForce, "force", "f", false, "skip the confirmation prompt")
}

func resetVaultsDestroyState() {
	destroyForce = false
}

// confirmDestroy asks the user to type the vault's name.
func confirmDestroy(name string) bool {
	if destroyForce {
		return true
	}
	if !utils.IsTerminal() {
		Logger.Warnf("Refusing to destroy %s without --force when stdin is not a terminal", name)
		return false
	}
	fmt.Printf("%s This permanently deletes vault %s and its history.\n", ui.Warning.Sprint("⚠"), ui.Highlight.Sprint(name))
	fmt.Print("Type the vault name to confirm: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == name
}

var vaultsDestroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "Delete a vault and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults destroy command")
		name := args[0]
		if !confirmDestroy(name) {
			fmt.Println(ui.Warning.Sprint("⚠") + " Aborted, vault " + ui.Highlight.Sprint(name) + " was not destroyed")
			return nil
		}

		spinner, cleanup := startSpinner("Destroying vault...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		if err := workflows.DestroyVault(ctx, n, name); err != nil {
			return fail(spinner, "Failed to destroy vault", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Destroyed vault " + ui.Highlight.Sprint(name)
		return nil
	},
}

var vaultsRenameCmd = &cobra.Command{
	Use:   "rename <name> <new-name>",
	Short: "Rename a vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults rename command")
		spinner, cleanup := startSpinner("Renaming vault...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		if err := workflows.RenameVault(ctx, n, args[0], args[1]); err != nil {
			return fail(spinner, "Failed to rename vault", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Renamed vault " + ui.Highlight.Sprint(args[0]) + " to " + ui.Highlight.Sprint(args[1])
		return nil
	},
}
