package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"activation-platform/internal/config"
	pg "activation-platform/internal/infra/db/postgres"
	"activation-platform/internal/infra/db/sqlite"
	"activation-platform/internal/infra/logging"
)

func RunMigrateCommand(g *globalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or inspect database migrations",
		Long:      "Postgres migrations run through golang-migrate. SQLite migrations are applied on open, so only \"up\" applies there.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath, g.dev)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log, cfg.Runtime.Dev)

			if cfg.Database.Driver == "sqlite" {
				if args[0] != "up" {
					return fmt.Errorf("migrate %s is not supported for sqlite", args[0])
				}
				db, err := sqlite.Open(cmd.Context(), cfg.Database.SQLitePath, log)
				if err != nil {
					return err
				}
				cmd.Println("sqlite schema is up to date")
				return db.Close()
			}

			switch args[0] {
			case "up", "down":
				if err := pg.RunMigrations(cfg.Database.URL, args[0]); err != nil {
					return err
				}
				cmd.Printf("migrations %s applied\n", args[0])
			case "version":
				v, dirty, err := pg.MigrationVersion(cfg.Database.URL)
				if err != nil {
					return err
				}
				cmd.Printf("version=%d dirty=%t\n", v, dirty)
			default:
				return fmt.Errorf("unknown migrate direction %q", args[0])
			}
			return nil
		},
	}
	return command
}

func RunCleanupCommand(g *globalFlags) *cobra.Command {
	var maxAge time.Duration

	command := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete unused activation codes older than --max-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath, g.dev)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log, cfg.Runtime.Dev)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			a, err := build(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if maxAge <= 0 {
				maxAge = cfg.Activation.CleanupMaxAge
			}
			n, err := a.uc.Cleanup(ctx, maxAge)
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d unused codes older than %s\n", n, maxAge)
			return nil
		},
	}
	command.Flags().DurationVar(&maxAge, "max-age", 0, "minimum age of unused codes to delete (default activation.cleanup_max_age)")
	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var (
		out   string
		force bool
	)

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Write the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" || out == "-" {
				return config.WriteDefault(cmd.OutOrStdout())
			}
			if _, err := os.Stat(out); err == nil && !force {
				cmd.Printf("Configuration file already exists at: %s\n", out)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create config file: %w", err)
			}
			if err := config.WriteDefault(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			cmd.Printf("Configuration file created at: %s\n", out)
			return nil
		},
	}
	command.Flags().StringVarP(&out, "output", "o", "", "output path (default stdout)")
	command.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return command
}
