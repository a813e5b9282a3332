package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datallboy/rangefetch/internal/domain"
	"github.com/datallboy/rangefetch/internal/engine"
)

var exampleUsage = strings.TrimSpace(`
  rangefetch --endpoint 127.0.0.1:8080
  rangefetch --endpoint 10.0.0.5:9000 --workers 4 --digest-mode streaming
  rangefetch --config rangefetch.yaml --output file:///var/lib/rangefetch
  rangefetch serve --origin ./payload.bin --listen 127.0.0.1:8080
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rangefetch: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		progress bool
	)

	root := &cobra.Command{
		Use:     "rangefetch",
		Short:   "Download an HTTP resource in fixed-size Range segments and print its digest",
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:    cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, cleanup, err := bootstrap(cmd.Context(), cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			defer cleanup()

			appCtx.Source = newSource(appCtx.Config)(appCtx.Config.Endpoint)

			dl := engine.NewDownloader(appCtx)
			run := dl.NewRun()

			if progress {
				stopProgress := startProgress(cmd, dl, run)
				defer stopProgress()
			}

			res, err := dl.Execute(cmd.Context(), run)
			if err != nil {
				appCtx.Logger.Error("Download failed: %v", err)
				return err
			}

			appCtx.Logger.Info("Run %s complete: %d bytes in %d segments", res.RunID, res.Resource.TotalLength, len(res.Windows))
			fmt.Fprintf(cmd.OutOrStdout(), "%s hash of the data: %s\n", res.Digest.Label(), res.Digest.Hex())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "config file (default "+defaultConfigHint()+")")
	pf.String("endpoint", "127.0.0.1:8080", "host:port of the HTTP origin")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-path", "rangefetch.log", "log file path")
	pf.Bool("include-stdout", true, "echo info and above to stdout")
	pf.Bool("no-store", false, "do not record run history")
	pf.String("store-driver", "sqlite", "history store driver: sqlite or postgres")
	pf.String("store-path", "rangefetch.db", "sqlite database path")
	pf.String("store-dsn", "", "postgres connection string")

	f := root.Flags()
	f.Int("packet-size", engine.DefaultPacketSize, "segment size in bytes")
	f.Int("workers", 1, "concurrent segment fetches (1 = sequential)")
	f.String("range-mode", "inclusive", "range upper bound: inclusive or legacy")
	f.Float64("rps", 0, "maximum requests per second (0 = unlimited)")
	f.String("output", "", "blob bucket URL to store the payload in, e.g. file:///tmp/out or mem://")
	f.Duration("timeout", 5*time.Second, "per-read socket deadline")
	f.Duration("write-timeout", 5*time.Second, "socket write deadline")
	f.Int("retries", 3, "attempts per request before giving up on transient errors")
	f.String("digest", "sha256", "digest algorithm: sha256 or sha512")
	f.String("digest-mode", "final", "digest mode: final or streaming")
	f.Int64("max-response-mb", 80, "largest segment response accepted, in MiB")
	f.BoolVar(&progress, "progress", false, "draw a progress bar")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newHistoryCmd(&cfgPath),
		newConfigCmd(&cfgPath),
	)

	return root
}

// startProgress draws the bar on stderr so stdout keeps only the digest line.
func startProgress(cmd *cobra.Command, dl *engine.Downloader, run *domain.Run) func() {
	p := engine.NewProgress(cmd.ErrOrStderr(), run)
	dl.OnStart(func(r domain.Resource, _ []domain.Window) {
		p.SetTotal(r.TotalLength)
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Start(ctx, 500*time.Millisecond)
	}()

	return func() {
		cancel()
		<-done
		p.Render(run.BytesWritten.Load(), 0, true)
	}
}
