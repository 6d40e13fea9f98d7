package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
)

func newDBCmd(gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Storage management commands",
	}

	cmd.AddCommand(newDBInitCmd(gf))
	return cmd
}

func newDBInitCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the Switchboard tables",
		Long:  "Creates the database when using MySQL and migrates the agents and envelopes tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, gf)
		},
	}
}

func runDBInit(cmd *cobra.Command, gf *globalFlags) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		fmt.Fprintln(out, "Storage driver is memory; nothing to initialize")
		return nil
	case config.DriverMySQL:
		adminDB, err := db.ConnectAdmin(cfg.Storage.Host, cfg.Storage.Port)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", cfg.Storage.Host, cfg.Storage.Port, err)
		}
		if err := db.CreateDatabase(adminDB, cfg.Storage.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Storage.Database)
	}

	gormDB, err := db.Open(cfg.Storage)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), cfg.Storage.Driver)
	return nil
}
