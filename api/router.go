// Package api 把核心服务以HTTP/JSON的形式提供给聊天平台的适配层
package api

import (
	"io"
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SlpAus/rollback-tracker/internal/confirm"
	"github.com/SlpAus/rollback-tracker/internal/guild"
	"github.com/SlpAus/rollback-tracker/internal/ledger"
	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/SlpAus/rollback-tracker/internal/platform/health"
	"github.com/SlpAus/rollback-tracker/internal/registry"
	"github.com/SlpAus/rollback-tracker/internal/roster"
)

// Deps 是路由需要的全部依赖
type Deps struct {
	Registry *registry.Registry
	Roster   *roster.Roster
	Ledger   *ledger.Ledger
	Confirm  *confirm.Service
	Guilds   guild.Directory
	Health   *health.Checker
	// Gatherer 为 nil 时不注册 /metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter 创建gin引擎并注册全部路由
func NewRouter(cfg config.ServerConfig, deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))
	if len(cfg.Cors.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Cors.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", headerActorID, headerActorRoles, headerRequestID},
			ExposeHeaders:    []string{"Content-Length", headerRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := &Handler{
		registry: deps.Registry,
		roster:   deps.Roster,
		ledger:   deps.Ledger,
		confirm:  deps.Confirm,
		health:   deps.Health,
		logger:   deps.Logger,
	}
	SetupRoutes(router, h, deps)
	return router
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, h *Handler, deps Deps) {
	router.GET("/healthz", h.Healthz)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	admin := requireAdmin(deps.Guilds)
	g := router.Group("/api/guilds/:guildId", guildScope())
	{
		// 列表
		g.POST("/lists", admin, h.CreateList)
		g.GET("/lists", admin, h.ListLists)
		g.GET("/lists/:listId", h.GetList)
		g.DELETE("/lists/:listId", admin, h.DeleteList)
		g.PUT("/lists/:listId/messages", h.UpdateMessages)

		// 参与者
		g.POST("/lists/:listId/participants", admin, h.RegisterParticipants)
		g.DELETE("/lists/:listId/participants/:userId", admin, h.RemoveParticipant)

		// 回档
		g.POST("/lists/:listId/rollbacks", h.SubmitRollback)
		g.POST("/lists/:listId/rollbacks/withdrawal", h.RequestWithdrawal)
		g.POST("/lists/:listId/rollbacks/withdrawal/confirm", h.ConfirmWithdrawal)
		g.POST("/lists/:listId/reset", admin, h.ResetRollbacks)
	}
}
