package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitely/v8-cffi/pkg/cli"
	"github.com/nitely/v8-cffi/pkg/engine/async"
	"github.com/nitely/v8-cffi/pkg/server"
)

var (
	serveAddr    string
	serveWorkers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve script runs over WebSocket",
	Long: `Serve script runs over WebSocket on /run.

Every connection gets its own scope; all connections share one machine and
its worker pool. Send {"id", "source", "identifier"} messages and receive
{"id", "output"} or {"id", "error", "kind"} replies as runs complete.
Prometheus metrics are served on /metrics.

Interrupt to stop: open connections are closed and their runs drained
before the engine is torn down.

Example:
  v8cffi serve --addr 127.0.0.1:8090 --workers 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sess, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		workers := serveWorkers
		if workers == 0 {
			workers = sess.profile.Workers
		}
		am := async.NewMachine(sess.vm, async.WithWorkers(workers))
		defer am.Close()

		h := server.NewHandler(am, server.WithLogger(slog.Default()))
		mux := http.NewServeMux()
		mux.Handle("/run", h)
		mux.Handle("/metrics", collector.Handler())

		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ln) }()
		cli.PrintInfo("Serving on ws://%s/run with %d workers", ln.Addr(), am.Workers())

		select {
		case err = <-errCh:
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr := srv.Shutdown(shutdownCtx)
		closeErr := h.Close()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return errors.Join(err, shutdownErr, closeErr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8090", "listen address")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "concurrent runs across all connections")
	rootCmd.AddCommand(serveCmd)
}
