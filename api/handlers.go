package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/rollback-tracker/internal/confirm"
	"github.com/SlpAus/rollback-tracker/internal/ledger"
	"github.com/SlpAus/rollback-tracker/internal/platform/health"
	"github.com/SlpAus/rollback-tracker/internal/registry"
	"github.com/SlpAus/rollback-tracker/internal/roster"
	"github.com/SlpAus/rollback-tracker/internal/status"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

// --- 请求体 ---

type createListRequest struct {
	ChannelID int64  `json:"channelId,string" binding:"required"`
	CreatedBy string `json:"createdBy" binding:"required"`
	Name      string `json:"name"`
	// 以下字段来自创建表单，填写时名称为 "time | date | name | server"
	Time   string `json:"time"`
	Date   string `json:"date"`
	Server string `json:"server"`
}

type participantsRequest struct {
	Members []roster.Member `json:"members"`
	// Users 是自由文本，可以包含 <@id> 提及和纯数字ID
	Users        string            `json:"users"`
	DisplayNames map[string]string `json:"displayNames"`
}

type submitRequest struct {
	UserID      string `json:"userId" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Text        string `json:"text"`
}

type withdrawalRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type confirmRequest struct {
	Token   string `json:"token" binding:"required"`
	Confirm bool   `json:"confirm"`
}

type messagesRequest struct {
	MessageID       *int64 `json:"messageId,string"`
	StatusMessageID *int64 `json:"statusMessageId,string"`
}

// --- 响应体 ---

// Rendered 是两种视图的纯文本渲染结果
type Rendered struct {
	Roster string `json:"roster"`
	Status string `json:"status"`
}

// ListState 是每个修改操作之后返回的列表状态
type ListState struct {
	Snapshot *store.Snapshot `json:"snapshot"`
	View     status.View     `json:"view"`
	Rendered Rendered        `json:"rendered"`
}

func newListState(snap *store.Snapshot) ListState {
	v := status.Project(snap)
	return ListState{
		Snapshot: snap,
		View:     v,
		Rendered: Rendered{Roster: status.RenderRoster(v), Status: status.RenderStatus(v)},
	}
}

// Handler 持有各个服务，为每个路由提供处理函数
type Handler struct {
	registry *registry.Registry
	roster   *roster.Roster
	ledger   *ledger.Ledger
	confirm  *confirm.Service
	health   *health.Checker
	logger   *slog.Logger
}

func (h *Handler) fail(c *gin.Context, err error) {
	writeError(c, h.logger, err)
}

// --- 列表 ---

// CreateList 创建一个新列表
func (h *Handler) CreateList(c *gin.Context) {
	var body createListRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}

	name := body.Name
	if body.Time != "" || body.Date != "" || body.Server != "" {
		name = registry.ComposeName(body.Time, body.Date, body.Name, body.Server)
	}
	list, err := h.registry.Create(c.Request.Context(), registry.CreateRequest{
		GuildID:   guildID(c),
		Name:      name,
		ChannelID: body.ChannelID,
		CreatedBy: body.CreatedBy,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	snap, err := h.registry.Snapshot(c.Request.Context(), list.ID, list.GuildID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newListState(snap))
}

// ListLists 返回服务器下全部列表的概览
func (h *Handler) ListLists(c *gin.Context) {
	sums, err := h.registry.Summaries(c.Request.Context(), guildID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if sums == nil {
		sums = []store.ListSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"lists": sums})
}

// GetList 返回列表的当前状态
func (h *Handler) GetList(c *gin.Context) {
	snap, err := h.registry.Snapshot(c.Request.Context(), c.Param("listId"), guildID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newListState(snap))
}

// DeleteList 删除列表及其全部数据
func (h *Handler) DeleteList(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), c.Param("listId"), guildID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateMessages 记录渲染层发送的消息ID
func (h *Handler) UpdateMessages(c *gin.Context) {
	var body messagesRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	listID := c.Param("listId")
	if err := h.registry.UpdateMessageIDs(c.Request.Context(), listID, guildID(c), body.MessageID, body.StatusMessageID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- 参与者 ---

// RegisterParticipants 批量登记参与者
func (h *Handler) RegisterParticipants(c *gin.Context) {
	var body participantsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}

	members := body.Members
	for _, id := range roster.ParseUserIDs(body.Users) {
		name := body.DisplayNames[id]
		if strings.TrimSpace(name) == "" {
			name = id
		}
		members = append(members, roster.Member{UserID: id, DisplayName: name})
	}
	if len(members) == 0 {
		badRequest(c, "没有找到任何有效的用户")
		return
	}

	res, err := h.roster.RegisterMany(c.Request.Context(), c.Param("listId"), guildID(c), members)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcomes": res.Outcomes,
		"state":    newListState(res.Snapshot),
	})
}

// RemoveParticipant 将用户移出列表
func (h *Handler) RemoveParticipant(c *gin.Context) {
	snap, err := h.roster.Remove(c.Request.Context(), c.Param("listId"), guildID(c), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newListState(snap))
}

// --- 回档 ---

// SubmitRollback 提交或替换回档
func (h *Handler) SubmitRollback(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	res, err := h.ledger.Submit(c.Request.Context(), ledger.SubmitRequest{
		ListID:      c.Param("listId"),
		GuildID:     guildID(c),
		UserID:      body.UserID,
		DisplayName: body.DisplayName,
		Text:        body.Text,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp": res.Timestamp,
		"replaced":  res.Replaced,
		"state":     newListState(res.Snapshot),
	})
}

// RequestWithdrawal 为撤回签发确认令牌，真正的删除发生在确认之后
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var body withdrawalRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	listID, gid := c.Param("listId"), guildID(c)

	err := h.ledger.CheckWithdrawable(ctx, listID, gid, body.UserID)
	if errors.Is(err, store.ErrNothingToRemove) {
		c.JSON(http.StatusOK, gin.H{"outcome": ledger.NothingToRemove})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	ticket, err := h.confirm.Issue(ctx, listID, gid, body.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": "confirmation_required", "ticket": ticket})
}

// ConfirmWithdrawal 消费确认令牌；confirm 为 false 时只作废令牌
func (h *Handler) ConfirmWithdrawal(c *gin.Context) {
	var body confirmRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	listID, gid := c.Param("listId"), guildID(c)

	// 令牌只对签发时的列表有效，发往其他列表时不会被消费
	p, err := h.confirm.Consume(ctx, body.Token, listID, gid)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !body.Confirm {
		c.JSON(http.StatusOK, gin.H{"outcome": "cancelled"})
		return
	}

	outcome, snap, err := h.ledger.Withdraw(ctx, listID, gid, p.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "state": newListState(snap)})
}

// ResetRollbacks 清空列表中的全部回档
func (h *Handler) ResetRollbacks(c *gin.Context) {
	snap, err := h.ledger.ResetAll(c.Request.Context(), c.Param("listId"), guildID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newListState(snap))
}

// --- 运维 ---

// Healthz 立即检查依赖并返回结果，降级时返回503
func (h *Handler) Healthz(c *gin.Context) {
	r := h.health.Check(c.Request.Context())
	code := http.StatusOK
	if r.State != health.StateHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, r)
}
