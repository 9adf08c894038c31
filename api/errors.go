package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/rollback-tracker/internal/confirm"
	"github.com/SlpAus/rollback-tracker/internal/ledger"
	"github.com/SlpAus/rollback-tracker/internal/registry"
	"github.com/SlpAus/rollback-tracker/internal/roster"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

// ErrorResponse 是所有错误响应的格式，Code 供调用方判断，Message 仅供阅读
type ErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	// ErrNotFound 既可能是列表不存在，也可能是登记时列表被并发删除
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{store.ErrNotRegistered, http.StatusConflict, "not_registered"},
	{store.ErrNothingToRemove, http.StatusConflict, "nothing_to_remove"},
	{store.ErrDuplicateKey, http.StatusConflict, "duplicate"},
	{ledger.ErrEmptyContent, http.StatusUnprocessableEntity, "empty_content"},
	{ledger.ErrTextTooLong, http.StatusUnprocessableEntity, "text_too_long"},
	{registry.ErrEmptyName, http.StatusBadRequest, "empty_name"},
	{registry.ErrIDExhausted, http.StatusServiceUnavailable, "id_exhausted"},
	{roster.ErrEmptyUserID, http.StatusBadRequest, "empty_user_id"},
	{confirm.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{confirm.ErrExpired, http.StatusGone, "token_expired"},
	{confirm.ErrAlreadyUsed, http.StatusGone, "token_used"},
}

// writeError 把业务错误映射为HTTP状态码。未知错误一律返回500，详细信息只写入日志。
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, ErrorResponse{Code: m.code, Message: m.target.Error()})
			return
		}
	}
	logger.Error("请求处理失败",
		"component", "api", "method", c.Request.Method, "path", c.FullPath(),
		"requestId", c.GetString(requestIDKey), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Message: "服务器内部错误"})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: "bad_request", Message: message})
}
