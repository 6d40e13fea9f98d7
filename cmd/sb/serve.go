package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/sweeper"
)

func newServeCmd(gf *globalFlags) *cobra.Command {
	var (
		port    int
		noSweep bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard and the presence sweeper",
		Long:  "Serves a read-only dashboard of agents, groups and channels with a live message stream, and removes agents that have been silent longer than sweeper.retention.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(gf, func(a *app) error {
				if cmd.Flags().Changed("port") {
					a.cfg.Dashboard.Port = port
				}
				return runServe(cmd, a, !noSweep)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "dashboard port (default from config)")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not prune silent agents")
	return cmd
}

func runServe(cmd *cobra.Command, a *app, sweep bool) error {
	ctx, stop := signal.NotifyContext(background(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sweep {
		sw, err := sweeper.New(a.registry, a.cfg.Sweeper.Schedule, a.cfg.Sweeper.Retention,
			slog.Default().With("component", "sweeper"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sweeping agents silent for %s on %q\n", a.cfg.Sweeper.Retention, a.cfg.Sweeper.Schedule)
		go sw.Run(ctx)
	}

	return dashboard.Start(ctx, dashboard.StartOpts{
		Backend: a.svc,
		Port:    a.cfg.Dashboard.Port,
		Out:     cmd.OutOrStdout(),
	})
}

