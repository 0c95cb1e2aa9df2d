package workflows

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PolarWolf314/strongbox/internal/audit"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
)

// ServeOptions configures Serve.
type ServeOptions struct {
	// Listen overrides the configured listen address.
	Listen string

	// Ready, when set, receives the bound address once the node accepts
	// connections.
	Ready func(addr string)
}

// Serve replicates this node's vaults to peers until ctx is cancelled.
func Serve(ctx context.Context, n *Node, opts ServeOptions) error {
	addr := opts.Listen
	if addr == "" {
		addr = n.Config.Server.Listen
	}

	handler := n.Vaults.Server(protocol.ServerOptions{
		RatePerMinute: n.Config.Server.RatePerMinute,
		Burst:         n.Config.Server.Burst,
	})
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	n.Log.Infof("Serving %d vaults on %s", len(n.Vaults.ListVaults()), ln.Addr())
	audit.Log(audit.LogWithNode(audit.OpServerStarted))
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Log.Infof("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
