package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/rollback-tracker/internal/confirm"
	"github.com/SlpAus/rollback-tracker/internal/guild"
	"github.com/SlpAus/rollback-tracker/internal/ledger"
	"github.com/SlpAus/rollback-tracker/internal/platform/config"
	"github.com/SlpAus/rollback-tracker/internal/platform/database"
	"github.com/SlpAus/rollback-tracker/internal/platform/health"
	"github.com/SlpAus/rollback-tracker/internal/platform/metrics"
	"github.com/SlpAus/rollback-tracker/internal/registry"
	"github.com/SlpAus/rollback-tracker/internal/roster"
	"github.com/SlpAus/rollback-tracker/internal/store"
)

const (
	testGuild  = "111"
	adminID    = "900"
	adminRole  = "77"
	statusChan = int64(555)
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SqlitePath: filepath.Join(t.TempDir(), "api.db"),
	}, false, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	st := store.New(db)
	require.NoError(t, st.Migrate(ctx))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	signer, err := confirm.NewSigner("secret")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dir := guild.StaticDirectory{111: {GuildID: 111, StatusChannelID: statusChan, AdminRoleIDs: []int64{77}}}

	return NewRouter(config.ServerConfig{Mode: gin.TestMode}, Deps{
		Registry: registry.New(st, dir, registry.WithMetrics(m)),
		Roster:   roster.New(st, roster.WithMetrics(m)),
		Ledger:   ledger.New(st, ledger.WithMetrics(m)),
		Confirm:  confirm.New(signer, rdb, time.Minute),
		Guilds:   dir,
		Health: health.NewChecker(map[string]health.Probe{
			"database": st.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, nil),
		Gatherer: reg,
	})
}

type call struct {
	method string
	path   string
	body   any
	admin  bool
}

func do(t *testing.T, r http.Handler, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.admin {
		req.Header.Set(headerActorID, adminID)
		req.Header.Set(headerActorRoles, "5, "+adminRole)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func lists(p string) string {
	return "/api/guilds/" + testGuild + "/lists" + p
}

// markers 从响应的名单视图中取出 userId -> 标记
func markers(t *testing.T, state any) map[string]string {
	t.Helper()
	view := state.(map[string]any)["view"].(map[string]any)
	out := map[string]string{}
	for _, e := range view["roster"].([]any) {
		entry := e.(map[string]any)
		out[entry["userId"].(string)] = entry["marker"].(string)
	}
	return out
}

func createList(t *testing.T, r http.Handler) string {
	t.Helper()
	w, body := do(t, r, call{method: http.MethodPost, path: lists(""), admin: true, body: map[string]any{
		"channelId": "10", "createdBy": "Admin", "time": "21:00", "date": "01.05", "name": "Raid", "server": "EU",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	list := body["snapshot"].(map[string]any)["list"].(map[string]any)
	assert.Equal(t, "21:00 | 01.05 | Raid | EU", list["name"])
	assert.Equal(t, "555", list["staticChannelId"])
	return list["id"].(string)
}

func TestScenarioOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	id := createList(t, r)

	// 登记 A 和 B
	w, body := do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/participants"), admin: true, body: map[string]any{
		"users":        "<@100000000000000001> 100000000000000002",
		"displayNames": map[string]string{"100000000000000001": "Alice"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, body["outcomes"], 2)

	a, b := "100000000000000001", "100000000000000002"
	submit := func(text string) map[string]any {
		w, body := do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/rollbacks"), body: map[string]any{
			"userId": a, "displayName": "Alice", "text": text,
		}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return body
	}

	body = submit("first")
	assert.Equal(t, false, body["replaced"])
	assert.Equal(t, map[string]string{a: "✅", b: "❌"}, markers(t, body["state"]))
	rendered := body["state"].(map[string]any)["rendered"].(map[string]any)
	assert.Contains(t, rendered["status"], "📝 first")

	body = submit("second")
	assert.Equal(t, true, body["replaced"])
	rendered = body["state"].(map[string]any)["rendered"].(map[string]any)
	assert.Contains(t, rendered["status"], "📝 second")
	assert.NotContains(t, rendered["status"], "first")
	assert.Len(t, body["state"].(map[string]any)["snapshot"].(map[string]any)["rollbacks"], 1)

	w, body = do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/reset"), admin: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]string{a: "❌", b: "❌"}, markers(t, body))
	assert.Empty(t, body["snapshot"].(map[string]any)["rollbacks"])
}

func TestWithdrawalFlow(t *testing.T) {
	r := newTestRouter(t)
	id := createList(t, r)
	do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/participants"), admin: true, body: map[string]any{
		"members": []map[string]string{{"userId": "1", "displayName": "Alice"}},
	}})

	withdraw := lists("/" + id + "/rollbacks/withdrawal")
	w, body := do(t, r, call{method: http.MethodPost, path: withdraw, body: map[string]any{"userId": "1"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nothing_to_remove", body["outcome"])

	w, body = do(t, r, call{method: http.MethodPost, path: withdraw, body: map[string]any{"userId": "2"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_registered", body["error"])

	w, _ = do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/rollbacks"), body: map[string]any{
		"userId": "1", "displayName": "Alice", "text": "my rollback",
	}})
	require.Equal(t, http.StatusOK, w.Code)

	issue := func() string {
		w, body := do(t, r, call{method: http.MethodPost, path: withdraw, body: map[string]any{"userId": "1"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "confirmation_required", body["outcome"])
		return body["ticket"].(map[string]any)["token"].(string)
	}

	// 取消：令牌作废，回档保留
	token := issue()
	w, body = do(t, r, call{method: http.MethodPost, path: withdraw + "/confirm", body: map[string]any{"token": token, "confirm": false}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", body["outcome"])
	w, _ = do(t, r, call{method: http.MethodPost, path: withdraw + "/confirm", body: map[string]any{"token": token, "confirm": true}})
	assert.Equal(t, http.StatusGone, w.Code)

	// 发往其他列表的确认被拒绝，令牌仍可在原列表使用
	token = issue()
	other := createList(t, r)
	w, body = do(t, r, call{method: http.MethodPost, path: lists("/" + other + "/rollbacks/withdrawal/confirm"), body: map[string]any{"token": token, "confirm": true}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_token", body["error"])

	// 确认：回档被删除
	w, body = do(t, r, call{method: http.MethodPost, path: withdraw + "/confirm", body: map[string]any{"token": token, "confirm": true}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "removed", body["outcome"])
	assert.Equal(t, map[string]string{"1": "❌"}, markers(t, body["state"]))
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)
	id := createList(t, r)
	do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/participants"), admin: true, body: map[string]any{
		"members": []map[string]string{{"userId": "1", "displayName": "Alice"}},
	}})

	w, body := do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/rollbacks"), body: map[string]any{
		"userId": "1", "displayName": "Alice", "text": "<a href='x'>link</a>",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "empty_content", body["error"])

	w, body = do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/rollbacks"), body: map[string]any{
		"userId": "2", "displayName": "Bob", "text": "hello",
	}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_registered", body["error"])

	w, body = do(t, r, call{method: http.MethodGet, path: "/api/guilds/222/lists/" + id})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["error"])

	w, _ = do(t, r, call{method: http.MethodGet, path: "/api/guilds/abc/lists/" + id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, r, call{method: http.MethodPost, path: lists("/" + id + "/participants"), admin: true, body: map[string]any{"users": "nobody"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", body["error"])
}

func TestAdminRoutesRequireRole(t *testing.T) {
	r := newTestRouter(t)

	w, _ := do(t, r, call{method: http.MethodGet, path: lists("")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, lists(""), nil)
	req.Header.Set(headerActorID, adminID)
	req.Header.Set(headerActorRoles, "5")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 未配置的服务器没有管理员
	req = httptest.NewRequest(http.MethodGet, "/api/guilds/222/lists", nil)
	req.Header.Set(headerActorID, adminID)
	req.Header.Set(headerActorRoles, adminRole)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	createList(t, r)
	w, body := do(t, r, call{method: http.MethodGet, path: lists(""), admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["lists"], 1)
	summary := body["lists"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(0), summary["participantCount"])
}

func TestDeleteListAndMessages(t *testing.T) {
	r := newTestRouter(t)
	id := createList(t, r)

	w, _ := do(t, r, call{method: http.MethodPut, path: lists("/" + id + "/messages"), body: map[string]any{
		"messageId": "123456789012345678", "statusMessageId": "223456789012345678",
	}})
	require.Equal(t, http.StatusNoContent, w.Code)

	w, body := do(t, r, call{method: http.MethodGet, path: lists("/" + id)})
	require.Equal(t, http.StatusOK, w.Code)
	list := body["snapshot"].(map[string]any)["list"].(map[string]any)
	assert.Equal(t, "123456789012345678", list["messageId"])

	w, _ = do(t, r, call{method: http.MethodDelete, path: lists("/" + id), admin: true})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = do(t, r, call{method: http.MethodGet, path: lists("/" + id)})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	createList(t, r)

	w, body := do(t, r, call{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rollback_tracker_lists_created_total 1")
}
