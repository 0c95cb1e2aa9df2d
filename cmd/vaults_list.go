package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var listVaultsJSON bool

func init() {
	vaultsListCmd.Flags().BoolVar(&listVaultsJSON, "json", false, "output as JSON array")
}

func resetVaultsListState() {
	listVaultsJSON = false
}

var vaultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List this node's vaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting vaults list command")
		ctx := context.Background()

		n, err := loadNode(ctx)
		if err != nil {
			fmt.Println(formatError("Failed to load node", err))
			if isUnexpectedError(err) {
				return err
			}
			return nil
		}
		summaries, err := workflows.ListVaults(ctx, n)
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to list vaults: %v", err)
		}
		Logger.Debugf("Found %d vaults", len(summaries))

		if listVaultsJSON {
			if summaries == nil {
				summaries = []workflows.VaultSummary{}
			}
			data, err := json.MarshalIndent(summaries, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to marshal vaults to JSON: %v", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if len(summaries) == 0 {
			fmt.Println("No vaults found.")
			fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("strongbox vaults create <name>") + " to create one")
			return nil
		}
		for _, s := range summaries {
			origin := ""
			if s.Origin != "" {
				origin = " " + ui.Muted.Sprint("from "+s.Origin)
			}
			fmt.Printf("%-24s %s  %d secrets%s\n", ui.Highlight.Sprint(s.Name), ui.Oid.Sprint(ui.ShortOid(string(s.Head))), s.Secrets, origin)
		}
		return nil
	},
}
