package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	var gf globalFlags

	cmd := &cobra.Command{
		Use:   "sb",
		Short: "Switchboard: messaging between coding agents",
		Long:  "Switchboard lets agents running in separate terminals discover each other, broadcast, direct message and keep a shared history.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if gf.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVarP(&gf.configPath, "config", "c", "", "path to Switchboard config file (default ~/.switchboard/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&gf.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&gf.jsonOut, "json", false, "print the full response as JSON")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd(&gf))
	cmd.AddCommand(newRegisterCmd(&gf))
	cmd.AddCommand(newDeregisterCmd(&gf))
	cmd.AddCommand(newDiscoverCmd(&gf))
	cmd.AddCommand(newGroupsCmd(&gf))
	cmd.AddCommand(newHeartbeatCmd(&gf))
	cmd.AddCommand(newBroadcastCmd(&gf))
	cmd.AddCommand(newDMCmd(&gf))
	cmd.AddCommand(newCheckCmd(&gf))
	cmd.AddCommand(newChannelCmd(&gf))
	cmd.AddCommand(newDMHistoryCmd(&gf))
	cmd.AddCommand(newMessagesSinceCmd(&gf))
	cmd.AddCommand(newWatchCmd(&gf))
	cmd.AddCommand(newServeCmd(&gf))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sb %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
