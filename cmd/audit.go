package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/audit"
	"github.com/PolarWolf314/strongbox/internal/ui"
)

var (
	auditVault string
	auditLimit int
	auditJSON  bool
)

func init() {
	auditCmd.Flags().StringVar(&auditVault, "vault", "", "only show operations on this vault")
	auditCmd.Flags().IntVarP(&auditLimit, "number", "n", 0, "only show the last n entries")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "output as JSON array")
}

func resetAuditCommandState() {
	auditVault = ""
	auditLimit = 0
	auditJSON = false
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the local audit log",
	Long: `Shows the operations this node has performed on its vaults and secrets,
oldest first. Secret values are never recorded.

Examples:
  strongbox audit -n 20
  strongbox audit --vault prod --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting audit command")

		entries, err := audit.ReadEntries()
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to read audit log: %v", err)
		}
		if auditVault != "" {
			entries = audit.ForVault(entries, auditVault)
		}
		if auditLimit > 0 && len(entries) > auditLimit {
			entries = entries[len(entries)-auditLimit:]
		}

		if auditJSON {
			if entries == nil {
				entries = []audit.Entry{}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to marshal entries to JSON: %v", err)
			}
			fmt.Println(string(data))
			return nil
		}
		if len(entries) == 0 {
			fmt.Println(ui.Info.Sprint("ℹ") + " No audit log entries found. Operations are logged once you run a vault or secrets command.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-19s  %-16s  %-14s  %s\n", formatAuditTime(e.Timestamp), e.Node, e.Operation, auditDetails(e))
		}
		return nil
	},
}

// formatAuditTime trims a stored timestamp to the second.
func formatAuditTime(ts string) string {
	ts = strings.Replace(ts, "T", " ", 1)
	if len(ts) > 19 {
		return ts[:19]
	}
	return ts
}

func auditDetails(e audit.Entry) string {
	var parts []string
	if e.Vault != "" {
		target := e.Vault
		if e.Secret != "" {
			target += "/" + e.Secret
		}
		parts = append(parts, target)
	}
	if e.NewName != "" {
		parts = append(parts, "-> "+e.NewName)
	}
	if e.Peer != "" {
		parts = append(parts, "peer="+e.Peer)
	}
	if e.Fingerprint != "" {
		parts = append(parts, e.Fingerprint)
	}
	if e.Commit != "" {
		parts = append(parts, ui.ShortOid(e.Commit))
	}
	return strings.Join(parts, " ")
}
