package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/SlpAus/rollback-tracker/internal/platform/config"
)

const programName = "rollback-tracker"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

func slogPrintf(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), "component", programName)
}

// commonRun 配置全局日志；debug 时同时输出源码位置
func commonRun(cfg *config.Config) *slog.Logger {
	debug := globalFlags.debug || cfg.Log.Debug
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: debug,
		Level:     level,
	}))
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(slogPrintf)); err != nil {
		logger.Error("设置GOMAXPROCS失败", "component", programName, "error", err)
	}
	return logger
}

func main() {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Rollback tracker core service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if globalFlags.debug {
				cfg.Log.Debug = true
			}
			cmd.SetContext(config.WithContext(cmd.Context(), cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd)
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(configCommand())
	rootCmd.AddCommand(backupCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
