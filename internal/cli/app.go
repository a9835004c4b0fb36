package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/harun/decaf/internal/config"
	"github.com/harun/decaf/internal/logger"
	"github.com/harun/decaf/internal/metrics"
	"github.com/harun/decaf/internal/tracing"
	"github.com/harun/decaf/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// invocation is what the positional arguments ask for.
type invocation struct {
	intervalArg string
	agent       []string
}

// parseInvocation splits "[interval-ms] [-- agent-command [args...]]".
func parseInvocation(cmd *cobra.Command, args []string) (invocation, error) {
	var inv invocation

	before := args
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		before = args[:dash]
		inv.agent = args[dash:]
	}

	switch len(before) {
	case 0:
	case 1:
		inv.intervalArg = before[0]
	default:
		return inv, fmt.Errorf("unexpected arguments %q: put the agent command after --", before[1:])
	}

	return inv, nil
}

// app holds what every proxy command needs.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	logger  zerolog.Logger
	metrics *metrics.Metrics

	metricsServer *http.Server
	tracing       bool
}

func newApp(cmd *cobra.Command, args []string) (*app, error) {
	inv, err := parseInvocation(cmd, args)
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if cmd.Flags().Changed("trace") {
		cfg.Tracing.Enabled = traceSpans
	}

	intervalOK := true
	if inv.intervalArg != "" {
		var interval time.Duration
		interval, intervalOK = config.ParseInterval(inv.intervalArg)
		cfg.FlushIntervalMS = int(interval / time.Millisecond)
	}

	if len(inv.agent) > 0 {
		cfg.Agent.Command = inv.agent[0]
		cfg.Agent.Args = inv.agent[1:]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateAgent(); err != nil {
		return nil, err
	}

	// A nil writer means stderr; tests swap in their own.
	var console io.Writer
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		console = w
	}

	log, err := logger.New(logger.Config{
		Level:         cfg.Logging.Level,
		File:          cfg.Logging.File,
		Console:       true,
		Pretty:        cfg.Logging.Pretty,
		ConsoleWriter: console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		logger:  log.GetZerolog(),
		metrics: metrics.NewMetrics(),
	}

	if !intervalOK {
		a.logger.Warn().
			Str("arg", inv.intervalArg).
			Int("interval_ms", cfg.FlushIntervalMS).
			Msg("Invalid flush interval, using default")
	}

	if !cmd.Flags().Changed("log-level") {
		a.watchLogLevel(loader)
	}

	if cfg.Tracing.Enabled {
		tracing.InitOpenTelemetry("decaf", tracing.NewLogProcessor(a.logger))
		a.tracing = true
		a.logger.Info().Msg("Tracing initialized")
	}

	if cfg.Metrics.Addr != "" {
		if err := a.startMetrics(cfg.Metrics.Addr); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	return a, nil
}

// watchLogLevel applies logging.level edits in the config file without a
// restart.
func (a *app) watchLogLevel(loader *config.Loader) {
	watching := loader.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			a.logger.Warn().Err(err).Msg("Ignoring invalid config change")
			return
		}
		if cfg.Logging.Level == a.log.Level().String() {
			return
		}
		if err := a.log.SetLevel(cfg.Logging.Level); err != nil {
			a.logger.Warn().Err(err).Msg("Ignoring invalid log level")
			return
		}
		a.logger.Info().Str("level", a.log.Level().String()).Msg("Log level changed")
	})
	if watching {
		a.logger.Debug().Str("path", loader.GetConfigPath()).Msg("Watching config for log level changes")
	}
}

func (a *app) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// processConfig describes the agent subprocess from the loaded config.
func (a *app) processConfig(cmd *cobra.Command) transport.ProcessConfig {
	return transport.ProcessConfig{
		Command: a.cfg.Agent.Command,
		Args:    a.cfg.Agent.Args,
		Env:     a.cfg.Agent.Env,
		Dir:     a.cfg.Agent.Dir,
		Stderr:  cmd.ErrOrStderr(),
		Logger:  a.logger,
	}
}

func (a *app) Close() error {
	if a.tracing {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to flush spans")
		}
	}
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	return a.log.Close()
}
