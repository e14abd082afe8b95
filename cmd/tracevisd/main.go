// Command tracevisd ingests per-thread trace streams from a dynamic
// binary instrumentation tracer and incrementally builds each thread's
// control-flow graph, exposing it read-only over internal/introspect.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...". Left
// at "dev" for a plain `go build`.
var version = "dev"

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tracevisd",
		Short: "Trace ingestion and graph construction core for a binary instrumentation visualizer",
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "tracevis.yaml", "path to the YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "override the configured log level (trace|debug|info|warn|error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tracevisd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
