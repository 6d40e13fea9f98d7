package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/ledger"
	"github.com/zulandar/switchboard/internal/mirror"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/switchboard"
	"github.com/zulandar/switchboard/internal/transport"
	"github.com/zulandar/switchboard/internal/transport/bus"
	"github.com/zulandar/switchboard/internal/transport/tmux"
)

// agentEnv names the variable agents export after registering so later
// commands know who is speaking.
const agentEnv = "SWITCHBOARD_AGENT_ID"

// app is a Service wired from config, plus the pieces commands need
// directly.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	registry *presence.Registry
	tmux     *tmux.Transport
	svc      *switchboard.Service
	closers  []func()
}

// openApp loads config and connects storage and the configured transport.
func openApp(gf *globalFlags) (*app, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.Default()

	a := &app{cfg: cfg}

	gormDB, err := db.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.db = gormDB
	if gormDB != nil {
		if sqlDB, err := gormDB.DB(); err == nil {
			a.closers = append(a.closers, func() { sqlDB.Close() })
		}
	}

	var store presence.Store
	if gormDB != nil {
		store = presence.NewGormStore(gormDB)
	} else {
		store = presence.NewMemoryStore()
	}
	a.registry = presence.NewRegistry(store,
		presence.WithStaleAfter(cfg.StaleAfter),
		presence.WithLogger(logger.With("component", "presence")),
	)

	var tr transport.Transport
	switch cfg.Transport {
	case config.TransportNATS:
		b, err := bus.Connect(bus.Options{
			URL:    cfg.NATS.URL,
			Name:   cfg.NATS.Name,
			Logger: logger.With("component", "bus"),
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		tr = b
	default:
		a.tmux = tmux.New(tmux.Options{
			Binary:  cfg.Tmux.Binary,
			Helper:  cfg.Tmux.Helper,
			Timeout: cfg.Tmux.Timeout,
			Logger:  logger.With("component", "tmux"),
		})
		tr = a.tmux
	}

	var led *ledger.Ledger
	if cfg.LedgerEnabled() {
		ledgerDB := gormDB
		if ledgerDB == nil {
			// The memory driver still gets a process-local history.
			if ledgerDB, err = db.OpenSQLite(":memory:"); err != nil {
				a.Close()
				return nil, err
			}
			if err := db.AutoMigrate(ledgerDB); err != nil {
				a.Close()
				return nil, err
			}
		}
		led = ledger.New(ledgerDB)
	}

	m, err := newMirror(cfg.Mirror, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.svc = switchboard.New(switchboard.Options{
		Registry:     a.registry,
		Transport:    tr,
		Ledger:       led,
		Mirror:       m,
		CheckTimeout: cfg.NATS.CheckTimeout,
		Logger:       logger,
	})
	return a, nil
}

// newMirror builds the chat sinks that are configured; nil when none are.
func newMirror(cfg config.MirrorConfig, logger *slog.Logger) (*mirror.Mirror, error) {
	var sinks []mirror.Sink
	if cfg.SlackToken != "" {
		s, err := mirror.NewSlack(cfg.SlackToken, cfg.SlackChannel)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.DiscordToken != "" {
		d, err := mirror.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return mirror.New(logger.With("component", "mirror"), sinks...), nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// withApp opens an app for the duration of fn.
func withApp(gf *globalFlags, fn func(a *app) error) error {
	a, err := openApp(gf)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// errFailed marks a command whose Response was an error. The text has already
// been printed.
var errFailed = errors.New("operation failed")

// printResponse writes resp to the command's output. Error responses go to
// stderr in red and make the command exit non-zero.
func printResponse(cmd *cobra.Command, gf *globalFlags, resp switchboard.Response) error {
	if gf.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if resp.IsError {
		fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("%s error: %s", resp.Kind, resp.Text))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), highlight(resp.Text))
	}
	if resp.IsError {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return errFailed
	}
	return nil
}

// highlight colors the stale marker in listings.
func highlight(text string) string {
	return strings.ReplaceAll(text, switchboard.StaleMarker, color.YellowString(switchboard.StaleMarker))
}

// agentFlag registers --agent, defaulting to $SWITCHBOARD_AGENT_ID.
func agentFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "agent", "a", os.Getenv(agentEnv), "your agent ID (default $"+agentEnv+")")
}

// joinArgs joins the message words so quoting is optional.
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

// background is the context for one-shot commands.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
