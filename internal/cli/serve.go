package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/decaf/pkg/decaf"
	"github.com/harun/decaf/pkg/gateway"
	"github.com/harun/decaf/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	serveListen string
	serveToken  string
)

var serveCmd = &cobra.Command{
	Use:   "serve [interval-ms] [-- agent-command [args...]]",
	Short: "Serve ACP clients over websocket",
	Long: `Accept ACP clients over websocket. Every client gets its own agent
process and its own coalescing link.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from config, 127.0.0.1:8765)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "bearer token clients must present")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.Close()

	listen := a.cfg.Serve.Listen
	if serveListen != "" {
		listen = serveListen
	}
	token := a.cfg.Serve.Token
	if serveToken != "" {
		token = serveToken
	}

	procCfg := a.processConfig(cmd)
	srv, err := gateway.NewServer(gateway.Config{
		Path:  a.cfg.Serve.Path,
		Token: token,
		Decaf: decaf.New(a.cfg.FlushInterval(),
			decaf.WithLogger(a.logger),
			decaf.WithMetrics(a.metrics),
		),
		StartAgent: func(ctx context.Context, connID string) (transport.Stream, error) {
			cfg := procCfg
			cfg.Logger = a.logger.With().Str("conn_id", connID).Logger()
			return transport.StartProcess(ctx, cfg)
		},
		Metrics: a.metrics,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	if err := srv.Start(listen); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on ws://%s%s\n", srv.Addr(), a.cfg.Serve.Path)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
