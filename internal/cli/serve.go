package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/config"
	"github.com/roach88/radiocap/internal/httpapi"
	"github.com/roach88/radiocap/internal/journal"
	"github.com/roach88/radiocap/internal/loop"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	Addr     string
	Database string

	// listening is called with the bound address once the server accepts
	// connections.
	listening func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a simulated device behind the HTTP API",
		Long: `Start a simulated device from a configuration file, run the capability
manager on a real-time event loop and expose it over HTTP.

Routes:
  GET    /healthz
  GET    /slots
  GET    /requests
  POST   /requests          {"slot": 1, "modes": ["lte"], "role": "internet"}
  DELETE /requests/{token}
  GET    /metrics

Example:
  radiocap serve --config device.yaml --addr :8080 --db ./radiocap.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "device configuration file (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "append trace events to this SQLite journal")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	mc, err := cfg.ManagerConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "manager config", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := loop.New(loop.WithLogger(logger))
	dev, err := config.NewDevice(l, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "build device", err)
	}

	mgrOpts := []capability.Option{capability.WithConfig(mc), capability.WithLogger(logger)}
	if opts.Database != "" {
		st, err := journal.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "open journal", err)
		}
		defer st.Close()
		run, err := st.BeginRun(ctx, "", "serve "+opts.Config, time.Now())
		if err != nil {
			return WrapExitError(ExitCommandError, "begin journal run", err)
		}
		logger.Info("journal run started", "run", run.ID, "db", opts.Database)
		mgrOpts = append(mgrOpts, capability.WithTracer(st.Recorder(ctx, run.ID)))
	}
	mgr := capability.New(l, mgrOpts...)
	if err := dev.Attach(mgr); err != nil {
		return WrapExitError(ExitCommandError, "attach device", err)
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}
	srv := &http.Server{
		Handler:           httpapi.New(l, mgr, httpapi.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(ctx) }()
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Serve(ln) }()

	logger.Info("serving", "addr", ln.Addr().String(), "slots", len(dev.Slots))
	if opts.listening != nil {
		opts.listening(ln.Addr().String())
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-srvDone:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	<-loopDone
	// The loop has returned; nothing else touches the manager now.
	mgr.Close()
	logger.Info("stopped")

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "http server", serveErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped.")
	return nil
}
