package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/datallboy/rangefetch/internal/api"
	"github.com/datallboy/rangefetch/internal/engine"
)

const serveQueueCapacity = 16

func newServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an origin file over HTTP and accept download runs through the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			appCtx, cleanup, err := bootstrap(ctx, *cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := appCtx.Config

			queue := engine.NewQueueManager(appCtx, engine.NewDownloader(appCtx), newSource(cfg), serveQueueCapacity)
			appCtx.Queue = queue

			// The queue's last SaveRun must land before cleanup closes the store
			queueCtx, stopQueue := context.WithCancel(ctx)
			waitQueue := runInBackground(queueCtx, queue.Start)
			defer waitQueue()
			defer stopQueue()

			srv := &http.Server{
				Addr:              cfg.Serve.Listen,
				Handler:           api.NewRouter(appCtx),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				appCtx.Logger.Info("Listening on %s (origin: %q)", cfg.Serve.Listen, cfg.Serve.OriginFile)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			appCtx.Logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	f := cmd.Flags()
	f.String("listen", "127.0.0.1:8080", "address the server listens on")
	f.String("origin", "", "file served at GET /")

	return cmd
}

// runInBackground starts fn in its own goroutine. The returned wait blocks
// until fn has returned.
func runInBackground(ctx context.Context, fn func(context.Context)) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() { <-done }
}
