package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var (
	vaultLogLimit   int
	vaultLogOneline bool
	vaultLogJSON    bool
)

func init() {
	vaultsLogCmd.Flags().IntVarP(&vaultLogLimit, "number", "n", 0, "limit number of commits shown")
	vaultsLogCmd.Flags().BoolVar(&vaultLogOneline, "oneline", false, "compact one-line format")
	vaultsLogCmd.Flags().BoolVar(&vaultLogJSON, "json", false, "output as JSON array")
}

func resetVaultsLogState() {
	vaultLogLimit = 0
	vaultLogOneline = false
	vaultLogJSON = false
}

var vaultsLogCmd = &cobra.Command{
	Use:   "log <name>",
	Short: "Show a vault's commit history",
	Long: `Shows a vault's commits, newest first, and whether each commit's
signature verifies against this node's key.

Examples:
  strongbox vaults log prod
  strongbox vaults log prod -n 10 --oneline`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults log command")
		ctx := context.Background()

		n, err := loadNode(ctx)
		if err == nil {
			var history []workflows.HistoryEntry
			if history, err = workflows.VaultLog(ctx, n, args[0], vaultLogLimit); err == nil {
				return outputVaultLog(history)
			}
		}
		fmt.Println(formatError("Failed to read vault history", err))
		if isUnexpectedError(err) {
			return err
		}
		return nil
	},
}

func outputVaultLog(history []workflows.HistoryEntry) error {
	if vaultLogJSON {
		data, err := json.MarshalIndent(history, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history to JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	for _, h := range history {
		subject, _, _ := strings.Cut(strings.TrimSpace(h.Message), "\n")
		if vaultLogOneline {
			fmt.Printf("%s %s\n", ui.Oid.Sprint(ui.ShortOid(string(h.Commit))), subject)
			continue
		}
		fmt.Printf("%s %s\n", ui.Warning.Sprint("commit"), ui.Oid.Sprint(string(h.Commit)))
		fmt.Printf("Author: %s\n", h.Author)
		fmt.Printf("Date:   %s\n", h.Time)
		fmt.Printf("Signed: %s\n", signatureStatus(h))
		fmt.Printf("\n    %s\n\n", subject)
	}
	return nil
}

func signatureStatus(h workflows.HistoryEntry) string {
	switch {
	case h.Verified:
		return ui.Success.Sprint("verified")
	case h.Signed:
		return ui.Warning.Sprint("signed by another node")
	default:
		return ui.Muted.Sprint("unsigned")
	}
}
