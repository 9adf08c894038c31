package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/SlpAus/rollback-tracker/api"
	"github.com/SlpAus/rollback-tracker/internal/confirm"
	"github.com/SlpAus/rollback-tracker/internal/guild"
	"github.com/SlpAus/rollback-tracker/internal/ledger"
	"github.com/SlpAus/rollback-tracker/internal/platform/backup"
	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"github.com/SlpAus/rollback-tracker/internal/platform/health"
	"github.com/SlpAus/rollback-tracker/internal/platform/metadata"
	"github.com/SlpAus/rollback-tracker/internal/platform/metrics"
	"github.com/SlpAus/rollback-tracker/internal/platform/shutdown"
	"github.com/SlpAus/rollback-tracker/internal/registry"
	"github.com/SlpAus/rollback-tracker/internal/roster"
	"github.com/SlpAus/rollback-tracker/internal/store"
	"github.com/SlpAus/rollback-tracker/pkg/lifecycle"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd)
		},
	}
}

func serveRun(cmd *cobra.Command) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("上下文中没有配置")
	}
	logger := commonRun(cfg)
	ctx := cmd.Context()

	// 1. 存储
	db, err := database.Open(cfg.Database, cfg.Log.Debug, logger)
	if err != nil {
		return err
	}
	st := store.New(db, store.WithLogger(logger))
	if err := st.Migrate(ctx); err != nil {
		_ = database.Close(db)
		return err
	}
	if err := metadata.Migrate(ctx, db); err != nil {
		_ = database.Close(db)
		return err
	}

	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = database.Close(db)
		return err
	}

	// 2. 服务
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	signer, err := confirm.NewSigner(cfg.Confirm.Secret)
	if err != nil {
		_ = rdb.Close()
		_ = database.Close(db)
		return err
	}
	if cfg.Confirm.Secret == "" {
		logger.Warn("未配置 confirm.secret，使用随机密钥，重启后未使用的确认令牌将失效", "component", programName)
	}

	guilds := guild.FromConfig(cfg.Guilds)
	checker := health.NewChecker(map[string]health.Probe{
		"database": st.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, logger)

	router := api.NewRouter(cfg.Server, api.Deps{
		Registry: registry.New(st, guilds, registry.WithLogger(logger), registry.WithMetrics(m)),
		Roster:   roster.New(st, roster.WithLogger(logger), roster.WithMetrics(m)),
		Ledger:   ledger.New(st, ledger.WithLogger(logger), ledger.WithMetrics(m)),
		Confirm:  confirm.New(signer, rdb, cfg.Confirm.TTL),
		Guilds:   guilds,
		Health:   checker,
		Gatherer: reg,
		Logger:   logger,
	})

	// 3. 后台服务与停机
	background := lifecycle.NewManager(logger)
	if err := background.Go("health", checker.Run); err != nil {
		return err
	}
	if cfg.Backup.Interval > 0 {
		if cfg.Database.Driver == "sqlite" {
			scheduler := backup.New(db, cfg.Backup, logger)
			if err := background.Go("backup", scheduler.Run); err != nil {
				return err
			}
		} else {
			logger.Warn("已配置备份间隔，但当前数据库驱动不支持快照备份", "component", programName, "driver", cfg.Database.Driver)
		}
	}

	coordinator := shutdown.NewCoordinator(background, cfg.Server.ShutdownTimeout, logger)
	coordinator.OnClose("database", func() error { return database.Close(db) })
	coordinator.OnClose("redis", rdb.Close)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	return coordinator.Serve(ctx, server)
}
