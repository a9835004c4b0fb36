package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile     string
	logLevel    string
	metricsAddr string
	traceSpans  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "decaf [interval-ms] [-- agent-command [args...]]",
	Short: "decaf - coalescing proxy for the Agent Client Protocol",
	Long: `decaf sits between an ACP client and an agent on stdio and merges the
agent's streamed text chunks into fewer, larger session updates.

Text is flushed every interval (default 100ms), before any other update for
the same session, and before the agent answers a prompt. Everything else is
passed through unchanged.

Examples:
  decaf -- my-agent --acp
  decaf 250 -- my-agent --acp`,
	Version:      version,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runProxy,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.decaf/decaf.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "log OpenTelemetry spans for links and flushes")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}
