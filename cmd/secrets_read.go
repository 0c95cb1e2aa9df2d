package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var (
	listSecretsJSON bool
	diffFrom        string
)

func init() {
	secretsListCmd.Flags().BoolVar(&listSecretsJSON, "json", false, "output as JSON array")
	secretsDiffCmd.Flags().StringVar(&diffFrom, "from", "", "commit to compare against (defaults to the previous commit)")
}

func resetSecretsReadState() {
	listSecretsJSON = false
	diffFrom = ""
}

// reportReadError prints err the way the write commands' spinners do.
func reportReadError(prefix string, err error) error {
	fmt.Println(formatError(prefix, err))
	if isUnexpectedError(err) {
		return err
	}
	return nil
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <vault> <secret>",
	Short: "Print a secret's value",
	Long: `Prints a secret's value to stdout exactly as stored, so it can be piped
into other commands.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting secrets get command")
		ctx := context.Background()

		n, err := loadNode(ctx)
		if err != nil {
			return reportReadError("Failed to load node", err)
		}
		value, err := workflows.GetSecret(ctx, n, args[0], args[1])
		if err != nil {
			return reportReadError("Failed to read secret", err)
		}
		if _, err := os.Stdout.Write(value); err != nil {
			return err
		}
		if utils.IsStdoutTerminal() && !strings.HasSuffix(string(value), "\n") {
			fmt.Println()
		}
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list <vault> [pattern]",
	Short: "List a vault's secrets",
	Long: `Lists the secrets in a vault, optionally filtered by a glob pattern
where ** matches across directories.

Examples:
  strongbox secrets list prod
  strongbox secrets list prod 'db/**'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting secrets list command")
		ctx := context.Background()
		pattern := ""
		if len(args) == 2 {
			pattern = args[1]
		}

		n, err := loadNode(ctx)
		if err != nil {
			return reportReadError("Failed to load node", err)
		}
		names, err := workflows.ListSecrets(ctx, n, args[0], pattern)
		if err != nil {
			return reportReadError("Failed to list secrets", err)
		}

		if listSecretsJSON {
			if names == nil {
				names = []string{}
			}
			data, err := json.MarshalIndent(names, "", "  ")
			if err != nil {
				return Logger.ErrorfAndReturn("Failed to marshal secrets to JSON: %v", err)
			}
			fmt.Println(string(data))
			return nil
		}
		if len(names) == 0 {
			fmt.Println("No secrets found in " + ui.Highlight.Sprint(args[0]) + ".")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var secretsDiffCmd = &cobra.Command{
	Use:   "diff <vault> <secret>",
	Short: "Show how a secret changed since an earlier commit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting secrets diff command")
		ctx := context.Background()

		n, err := loadNode(ctx)
		if err != nil {
			return reportReadError("Failed to load node", err)
		}
		diff, err := workflows.DiffSecret(ctx, n, args[0], args[1], diffFrom)
		if err != nil {
			return reportReadError("Failed to diff secret", err)
		}
		if diff == "" {
			fmt.Println(ui.Info.Sprint("ℹ") + " No changes to " + ui.Highlight.Sprint(args[1]))
			return nil
		}
		for _, line := range strings.SplitAfter(diff, "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				fmt.Print(line)
			case strings.HasPrefix(line, "+"):
				fmt.Print(ui.Success.Sprint(line))
			case strings.HasPrefix(line, "-"):
				fmt.Print(ui.Error.Sprint(line))
			case strings.HasPrefix(line, "@@"):
				fmt.Print(ui.Info.Sprint(line))
			default:
				fmt.Print(line)
			}
		}
		return nil
	},
}
