package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/configs"
	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var (
	nodeInitName  string
	nodeInitEmail string
	nodeInitForce bool
	nodeShowJSON  bool

	// NodeCmd groups the commands that manage this node.
	NodeCmd = &cobra.Command{
		Use:   "node",
		Short: "Manage this node's identity and peers",
		Long: `Provides commands for setting up this node's key pair and configuration,
and for naming the peers it replicates vaults with.

Examples:
  # Create this node's key pair and configuration
  strongbox node init --email alice@example.com

  # Show this node's identity
  strongbox node show

  # Give a peer a short name
  strongbox node peer add laptop http://10.0.0.5:7878`,
	}
)

func init() {
	nodeInitCmd.Flags().StringVarP(&nodeInitName, "name", "n", "", "node name (defaults to the hostname)")
	nodeInitCmd.Flags().StringVarP(&nodeInitEmail, "email", "e", "", "email recorded on this node's commits")
	nodeInitCmd.Flags().BoolVarP(&nodeInitForce, "force", "f", false, "replace an existing key pair")
	nodeShowCmd.Flags().BoolVar(&nodeShowJSON, "json", false, "output in JSON format")

	nodePeerCmd.AddCommand(nodePeerAddCmd)
	NodeCmd.AddCommand(nodeInitCmd)
	NodeCmd.AddCommand(nodeShowCmd)
	NodeCmd.AddCommand(nodePeerCmd)
}

// resetNodeCommandState resets the node commands' global state for testing.
func resetNodeCommandState() {
	nodeInitName = ""
	nodeInitEmail = ""
	nodeInitForce = false
	nodeShowJSON = false
}

var nodeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create this node's key pair and configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting node init command")
		spinner, cleanup := startSpinner("Generating node key pair...")
		defer cleanup()

		result, err := workflows.InitNode(context.Background(), workflows.InitNodeOptions{
			Name:  nodeInitName,
			Email: nodeInitEmail,
			Force: nodeInitForce,
		})
		if err != nil {
			return fail(spinner, "Failed to initialize node", err)
		}

		Logger.Infof("Node %s initialized with key %s", result.Name, result.Fingerprint)
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Node " + ui.Highlight.Sprint(result.Name) + " initialized\n" +
			"  Node ID:     " + ui.Oid.Sprint(result.UUID) + "\n" +
			"  Fingerprint: " + ui.Oid.Sprint(result.Fingerprint) + "\n" +
			"  Public key:  " + ui.Path.Sprint(result.PublicKeyPath) + "\n" +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("strongbox vaults create <name>") + " to create your first vault"
		return nil
	},
}

var nodeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display this node's identity, vaults and peers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting node show command")
		ctx := context.Background()

		n, err := loadNode(ctx)
		if err != nil {
			fmt.Println(formatError("Failed to load node", err))
			if isUnexpectedError(err) {
				return err
			}
			return nil
		}
		info, err := workflows.ShowNode(ctx, n)
		if err != nil {
			return Logger.ErrorfAndReturn("Failed to describe node: %v", err)
		}

		if nodeShowJSON {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to marshal node to JSON: %v", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println(ui.Info.Sprint("Node") + " (" + ui.Path.Sprint(configs.StrongboxSettings.ConfigFile()) + "):")
		fmt.Println()
		fmt.Printf("  %-13s %s\n", "Name:", ui.Highlight.Sprint(info.Name))
		if info.Email != "" {
			fmt.Printf("  %-13s %s\n", "Email:", info.Email)
		}
		fmt.Printf("  %-13s %s\n", "Node ID:", ui.Oid.Sprint(info.UUID))
		fmt.Printf("  %-13s %s\n", "Fingerprint:", ui.Oid.Sprint(info.Fingerprint))
		fmt.Println()

		if len(info.Vaults) == 0 {
			fmt.Println("  Vaults:       " + ui.Muted.Sprint("none"))
		} else {
			fmt.Println("  Vaults:")
			for _, v := range info.Vaults {
				fmt.Println("    " + ui.Highlight.Sprint(v))
			}
		}

		if len(info.Peers) == 0 {
			fmt.Println("  Peers:        " + ui.Muted.Sprint("none"))
			return nil
		}
		fmt.Println("  Peers:")
		names := make([]string, 0, len(info.Peers))
		for name := range info.Peers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("    %-12s %s\n", name, ui.Path.Sprint(info.Peers[name]))
		}
		return nil
	},
}

var nodePeerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Manage named peers",
}

var nodePeerAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Give a peer's base URL a short name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting node peer add command")
		spinner, cleanup := startSpinner("Adding peer...")
		defer cleanup()

		ctx := context.Background()
		n, err := loadNode(ctx)
		if err != nil {
			return fail(spinner, "Failed to load node", err)
		}
		if err := workflows.AddPeer(ctx, n, args[0], args[1]); err != nil {
			return fail(spinner, "Failed to add peer", err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Peer " + ui.Highlight.Sprint(args[0]) + " now points at " + ui.Path.Sprint(args[1])
		return nil
	},
}
