package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string // Only config path for CLI commands
}

// buildRoot creates the root command with its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatsCommand(),
		createCatCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "trackr",
		Short: "Function call logging pipeline and collector",
		Long: `Trackr records function call outcomes into JSONL files, databases,
or a remote collector daemon.

Examples:
  trackr serve --config=trackr.toml   # Start a collector daemon
  trackr stats                        # Counters from a running collector
  trackr cat logs/trackr.jsonl        # Print recorded calls`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the trackr collector daemon",
		Long: `Start the collector daemon that receives call records over HTTP and
flushes them into the configured storage backend.

Examples:
  trackr serve                      # Start with built-in defaults
  trackr serve trackr.toml          # Start with specific config file
  trackr serve --config=trackr.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.NonBlocking, "non-blocking", false, "start, then shut down immediately (for smoke tests)")
	cmd.Flags().DurationVar(&serveFlags.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "how long to wait for the final drain on shutdown")

	return cmd
}

// createStatsCommand creates the stats subcommand
func createStatsCommand() *cobra.Command {
	statsFlags := &StatsFlags{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline counters from a running collector",
		Long: `Query a running collector daemon and print its pipeline counters.

Examples:
  trackr stats
  trackr stats --api-url=http://remote:9313/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatsCommand(statsFlags)
		},
	}

	cmd.Flags().StringVar(&statsFlags.APIUrl, "api-url", "", "collector API base URL (default http://127.0.0.1:9313/api)")
	cmd.Flags().StringVar(&statsFlags.APIKey, "api-key", "", "collector API key")
	cmd.Flags().DurationVar(&statsFlags.APITimeout, "api-timeout", 10*time.Second, "collector request timeout")

	return cmd
}

// createCatCommand creates the cat subcommand
func createCatCommand() *cobra.Command {
	catFlags := &CatFlags{}

	cmd := &cobra.Command{
		Use:   "cat [file.jsonl]",
		Short: "Print recorded calls from a JSONL file",
		Long: `Read a JSONL record file and print one JSON record per line.
Partial trailing lines from an interrupted writer are skipped.

Examples:
  trackr cat logs/trackr.jsonl
  trackr cat logs/trackr.jsonl --errors-only --limit=20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatCommand(catFlags, args)
		},
	}

	cmd.Flags().StringVar(&catFlags.Path, "file", "", "record file to read")
	cmd.Flags().IntVar(&catFlags.Limit, "limit", 0, "print only the last N records")
	cmd.Flags().BoolVar(&catFlags.ErrorsOnly, "errors-only", false, "print only failed calls")

	return cmd
}
