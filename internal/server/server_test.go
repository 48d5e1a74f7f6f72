package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/internal/service"
	"github.com/noah-isme/factory-ops-api/pkg/config"
)

func newTestApp(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Env:         config.EnvDevelopment,
		APIPrefix:   "/api/v1",
		StoreDriver: config.StoreDriverMemory,
		JWT:         config.JWTConfig{Secret: "secret", Expiration: time.Hour, Issuer: "factory-ops"},
		Notifications: config.NotificationsConfig{
			Window:     24 * time.Hour,
			Workers:    1,
			BufferSize: 16,
			RetryDelay: time.Millisecond,
		},
		Allocator: config.AllocatorConfig{MaxAttempts: 5, Timezone: "UTC"},
	}
	app, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	require.NoError(t, app.Workspace.WaitSynced(context.Background()))
	return app, app.Router()
}

func bearer(t *testing.T, app *App, role models.UserRole) string {
	t.Helper()
	token, _, err := app.Services.Auth.IssueToken(service.IssueTokenRequest{UserID: "u-" + string(role), Name: string(role), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterRequiresToken(t *testing.T) {
	_, router := newTestApp(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/api/v1/jig-requests", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/ready", "", nil).Code)
}

func TestJigRequestFlow(t *testing.T) {
	app, router := newTestApp(t)
	worker := bearer(t, app, models.RoleWorker)

	w := do(t, router, http.MethodPost, "/api/v1/jig-requests", worker, map[string]interface{}{
		"title": "Drill fixture", "requester": "Line 2", "quantity": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data models.JigRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "T1", created.Data.ID)

	w = do(t, router, http.MethodPost, "/api/v1/jig-requests/T1/status", worker, map[string]string{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/v1/jig-requests/T1/receive", worker, map[string]int{"delta": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var received struct {
		Data models.JigRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &received))
	assert.Equal(t, models.JigStatusCompleted, received.Data.Status)
	assert.Len(t, received.Data.History, 3)

	w = do(t, router, http.MethodPost, "/api/v1/jig-requests/T404/status", worker, map[string]string{"status": "HOLD"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodDelete, "/api/v1/jig-requests/T1", worker, nil).Code)

	require.Eventually(t, func() bool {
		w := do(t, router, http.MethodGet, "/api/v1/notifications?type=jig", worker, nil)
		var list struct {
			Data []models.NotificationView `json:"data"`
		}
		return w.Code == http.StatusOK && json.Unmarshal(w.Body.Bytes(), &list) == nil && len(list.Data) == 3
	}, 2*time.Second, 10*time.Millisecond)

	w = do(t, router, http.MethodPost, "/api/v1/notifications/read-all", worker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"marked":3`)
}

func TestMasterDataAndSystemMetricsAreAdminOnly(t *testing.T) {
	app, router := newTestApp(t)
	worker := bearer(t, app, models.RoleWorker)
	admin := bearer(t, app, models.RoleAdmin)

	body := map[string][]string{"values": {"Line 1", "Line 2"}}
	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodPut, "/api/v1/master-data/destinations", worker, body).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/v1/master-data/destinations", admin, body).Code)

	w := do(t, router, http.MethodGet, "/api/v1/master-data", worker, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"destinations":["Line 1","Line 2"]`)

	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodGet, "/api/v1/system/metrics", worker, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/system/metrics", admin, nil).Code)
}
