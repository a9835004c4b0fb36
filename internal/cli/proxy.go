package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/decaf/pkg/decaf"
	"github.com/harun/decaf/pkg/transport"
	"github.com/spf13/cobra"
)

// runProxy serves one client on stdin/stdout.
func runProxy(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := transport.StartProcess(ctx, a.processConfig(cmd))
	if err != nil {
		return err
	}

	d := decaf.New(a.cfg.FlushInterval(),
		decaf.WithLogger(a.logger),
		decaf.WithMetrics(a.metrics),
	)

	a.logger.Info().
		Dur("interval", d.Interval()).
		Str("agent", a.cfg.Agent.Command).
		Msg("Proxying stdio")

	err = d.Run(ctx, stdio(cmd), agent)
	if closeErr := agent.Close(); closeErr != nil {
		a.logger.Warn().Err(closeErr).Msg("Failed to stop agent")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("proxy failed: %w", err)
	}
	return nil
}

// stdio returns the client stream, honouring cobra's I/O overrides.
func stdio(cmd *cobra.Command) transport.Stream {
	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	if in == os.Stdin && out == os.Stdout {
		return transport.Stdio()
	}
	return transport.NewLineStream(in, out)
}
