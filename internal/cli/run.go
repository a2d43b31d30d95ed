package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/arbor/internal/repository"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Documents   []string
	Shutdown    time.Duration
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the repository's query engine and index feed",
		Long: `Start the query engine of the configured repository and keep it running
until interrupted.

Startup applies indexing.rebuildOnStartup. With the kafka-master index
backend the remote indexing feed is consumed until shutdown. On SIGINT or
SIGTERM any tracked full reindex is given the configured grace period,
then the reindex pool, the feed and the index backend are shut down.

Example:
  arbor run --config repository.yaml -d ./types`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepository(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Documents, "documents", "d", nil, "CUE documents with node types")
	cmd.Flags().DurationVar(&opts.Shutdown, "shutdown-timeout", 30*time.Second, "how long to wait for reindex jobs at shutdown")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics at /metrics on this address (e.g. :9090)")

	return cmd
}

func runRepository(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var docs *Documents
	if len(opts.Documents) > 0 {
		var err error
		if docs, err = LoadDocuments(opts.Documents); err != nil {
			return formatter.Fail(ExitCommandError, loadErrorCode(err, ErrCodeBuildFailed), err)
		}
	}

	reg := prometheus.NewRegistry()

	repo, err := OpenRepository(opts.RootOptions, docs, formatter.GetErrWriter(), repository.WithRegisterer(reg))
	if err != nil {
		return formatter.Fail(ExitCommandError, loadErrorCode(err, ErrCodeStore), err)
	}

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				repo.Logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		repo.Logger.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			repo.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	job, err := repo.Manager.Initialize(ctx)
	if err != nil {
		repo.Close(context.Background())
		return formatter.Fail(ExitFailure, ErrCodeReindex, err)
	}
	if job != nil {
		repo.Logger.Info("startup reindex running", "job", job.ID())
	}

	repo.Logger.Info("repository started", "name", repo.Config.Name, "backend", repo.Config.Indexing.Backend.Type)
	fmt.Fprintln(formatter.Writer, "Repository started. Press Ctrl-C to stop.")

	<-ctx.Done()

	repo.Manager.StopReindexing()
	shutdownCtx, stop := context.WithTimeout(context.Background(), opts.Shutdown)
	defer stop()
	if err := repo.Close(shutdownCtx); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, err)
	}

	repo.Logger.Info("repository stopped gracefully")
	return nil
}
