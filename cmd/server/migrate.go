package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/SlpAus/rollback-tracker/internal/platform/backup"
	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"github.com/SlpAus/rollback-tracker/internal/platform/metadata"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("上下文中没有配置")
			}
			logger := commonRun(cfg)

			db, err := database.Open(cfg.Database, cfg.Log.Debug, logger)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := store.New(db, store.WithLogger(logger)).Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := metadata.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info("数据表迁移完成", "component", programName, "driver", cfg.Database.Driver)
			return nil
		},
	}
}

func configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration without secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("上下文中没有配置")
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func backupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a single SQLite snapshot into the backup directory and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("上下文中没有配置")
			}
			logger := commonRun(cfg)

			db, err := database.Open(cfg.Database, cfg.Log.Debug, logger)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := metadata.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			path, err := backup.New(db, cfg.Backup, logger).Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
