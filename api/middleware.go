package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/SlpAus/rollback-tracker/internal/guild"
)

const (
	requestIDKey = "requestID"
	guildIDKey   = "guildID"

	headerRequestID  = "X-Request-Id"
	headerActorID    = "X-Actor-Id"
	headerActorRoles = "X-Actor-Roles"
)

// requestLogger 为每个请求分配ID，并在请求结束后记录一条日志
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(headerRequestID, id)

		start := time.Now()
		c.Next()

		logger.Info("请求完成",
			"component", "api",
			"requestId", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// guildScope 解析路径中的 guildId，后续处理函数通过 guildID(c) 读取
func guildScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("guildId"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "guildId 不合法"})
			return
		}
		c.Set(guildIDKey, id)
		c.Next()
	}
}

func guildID(c *gin.Context) int64 {
	return c.GetInt64(guildIDKey)
}

// requireAdmin 根据请求头中的操作者ID和角色判断其是否为服务器管理员
func requireAdmin(dir guild.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := strconv.ParseInt(c.GetHeader(headerActorID), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Message: "缺少操作者ID"})
			return
		}
		roles, err := parseIDs(c.GetHeader(headerActorRoles))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: "角色ID不合法"})
			return
		}
		if !guild.IsAdmin(dir, guildID(c), actor, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Code: "forbidden", Message: "没有执行该操作的权限"})
			return
		}
		c.Next()
	}
}

// parseIDs 解析逗号分隔的数字ID列表
func parseIDs(header string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
