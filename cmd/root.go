package cmd

import (
	logger "github.com/PolarWolf314/strongbox/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose bool
	debug   bool
	Logger  logger.Logger

	// RootCmd is the strongbox command every other command hangs off.
	RootCmd = &cobra.Command{
		Use:   "strongbox",
		Short: "Strongbox - encrypted, version-controlled secret vaults",
		Long: `Strongbox keeps secrets in encrypted vaults with a full commit history,
and replicates them between nodes over a Git-compatible wire protocol.

Usage:
  strongbox <command> [flags]

Available Commands:
  node       Set up this node's identity and peers
  vaults     Create, clone and manage vaults
  secrets    Store and read secrets in a vault
  serve      Serve this node's vaults to peers
  audit      Show the local audit log

Run 'strongbox help <command>' for more details on a specific command.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Initializing %s command with verbose=%t, debug=%t", cmd.Name(), verbose, debug)
		},
	}
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")

	RootCmd.AddCommand(NodeCmd)
	RootCmd.AddCommand(VaultsCmd)
	RootCmd.AddCommand(SecretsCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(auditCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	Logger = logger.Logger{}
	resetNodeCommandState()
	resetVaultsCommandState()
	resetSecretsCommandState()
	resetServeCommandState()
	resetAuditCommandState()
	resetCobraFlagState(RootCmd)
}

// resetCobraFlagState clears Changed on every flag so one test's flags do
// not leak into the next.
func resetCobraFlagState(c *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		flag.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetCobraFlagState(child)
	}
}
