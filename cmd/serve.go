package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/PolarWolf314/strongbox/internal/ui"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/workflows"
)

var (
	serveListen   string
	serveNoBanner bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "address to listen on (defaults to the configured one)")
	serveCmd.Flags().BoolVar(&serveNoBanner, "no-banner", false, "do not print the startup banner")
}

func resetServeCommandState() {
	serveListen = ""
	serveNoBanner = false
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve this node's vaults to peers",
	Long: `Serves every vault on this node over HTTP so that peers can clone and
pull them. Requests are rate limited per peer. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting serve command")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		n, err := loadNode(ctx)
		if err != nil {
			fmt.Println(formatError("Failed to load node", err))
			if isUnexpectedError(err) {
				return err
			}
			return nil
		}

		ready := func(addr string) {
			if !serveNoBanner && utils.IsStdoutTerminal() {
				fmt.Println()
				figure.NewColorFigure("Strongbox", "alligator2", "green", true).Print()
				fmt.Println()
			}
			fmt.Printf("%s Serving %d vaults on %s\n", ui.Success.Sprint("✓"), len(n.Vaults.ListVaults()), ui.Path.Sprint("http://"+addr))
			fmt.Printf("%s Press %s to stop\n", ui.Info.Sprint("→"), ui.Code.Sprint("Ctrl-C"))
		}

		if err := workflows.Serve(ctx, n, workflows.ServeOptions{Listen: serveListen, Ready: ready}); err != nil {
			return Logger.ErrorfAndReturn("Server stopped: %v", err)
		}
		fmt.Println(ui.Info.Sprint("ℹ") + " Server stopped")
		return nil
	},
}
