package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"slotwatch/internal/badge"
	"slotwatch/internal/config"
	"slotwatch/internal/events"
	"slotwatch/internal/models"
	"slotwatch/internal/queue"
	"slotwatch/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopIndicator struct{}

func (nopIndicator) SetText(string) error { return nil }
func (nopIndicator) Clear() error         { return nil }

type nopPortal struct{}

func (nopPortal) FetchSlots(context.Context, string) (string, error)    { return "", nil }
func (nopPortal) FetchEditForm(context.Context, string) (string, error) { return "", nil }
func (nopPortal) SubmitBooking(context.Context, string, models.SubmitBody) (string, error) {
	return "", nil
}

type nopAuth struct{}

func (nopAuth) IsAuthenticated(context.Context) bool { return true }
func (nopAuth) CurrentUser(context.Context) string   { return "" }

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, models.Notification) {}

func newTestServer(t *testing.T, cfg config.APIConfig) (*Server, *queue.Manager) {
	t.Helper()
	logger := zerolog.Nop()
	st := store.NewMemoryStore()
	agg := badge.NewAggregator(nopIndicator{}, logger)
	m := queue.NewManager(st, nopPortal{}, nopAuth{}, agg, nopDispatcher{}, events.NewEventBus(), models.QueueStorageKey, logger)

	srv := NewServer(cfg, config.ExportConfig{Path: t.TempDir()}, m, logger)
	return srv, m
}

func apiItem(tvAppID, startSlot string) models.RetryItem {
	return models.RetryItem{
		TvAppID:   tvAppID,
		StartSlot: startSlot,
		EndSlot:   "07.08.2030 20:00:00",
		URL:       "https://portal.example/booking/update",
		Status:    models.StatusInProgress,
		Body:      models.SubmitBody{Form: map[string]string{models.SlotField: startSlot}},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueueEndpoints(t *testing.T) {
	srv, m := newTestServer(t, config.APIConfig{})
	h := srv.Handler()
	ctx := context.Background()

	t.Run("EmptyList", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/queue", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
	})

	t.Run("Add", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/queue", apiItem("TV1", "07.08.2030 19:00:00"))
		require.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("AddDuplicate", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/api/v1/queue", apiItem("TV1", "07.08.2030 19:00:00"))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("AddInvalid", func(t *testing.T) {
		bad := apiItem("", "07.08.2030 19:00:00")
		rec := doJSON(t, h, http.MethodPost, "/api/v1/queue", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("PauseResume", func(t *testing.T) {
		items, err := m.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		id := items[0].ID

		rec := doJSON(t, h, http.MethodPost, "/api/v1/queue/"+id+"/pause", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		items, _ = m.GetAll(ctx)
		assert.Equal(t, models.StatusPaused, items[0].Status)

		rec = doJSON(t, h, http.MethodPost, "/api/v1/queue/"+id+"/resume", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		items, _ = m.GetAll(ctx)
		assert.Equal(t, models.StatusInProgress, items[0].Status)
	})

	t.Run("Patch", func(t *testing.T) {
		items, _ := m.GetAll(ctx)
		id := items[0].ID

		driver := "Сидоров С.С."
		rec := doJSON(t, h, http.MethodPatch, "/api/v1/queue/"+id, models.ItemPatch{DriverName: &driver})
		require.Equal(t, http.StatusOK, rec.Code)

		items, _ = m.GetAll(ctx)
		assert.Equal(t, driver, items[0].DriverName)
	})

	t.Run("RemoveGroup", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodDelete, "/api/v1/queue/group/TV1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		items, _ := m.GetAll(ctx)
		assert.Empty(t, items)
	})

	t.Run("RemoveByID", func(t *testing.T) {
		items, err := m.Add(ctx, apiItem("TV2", "07.08.2030 19:00:00"))
		require.NoError(t, err)
		id := items[0].ID

		rec := doJSON(t, h, http.MethodDelete, "/api/v1/queue/"+id, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		left, _ := m.GetAll(ctx)
		assert.Empty(t, left)
	})

	t.Run("ReplaceAll", func(t *testing.T) {
		replacement := []models.RetryItem{apiItem("TV9", "09.08.2030 09:00:00")}
		rec := doJSON(t, h, http.MethodPut, "/api/v1/queue", map[string]any{"items": replacement})
		require.Equal(t, http.StatusOK, rec.Code)

		items, _ := m.GetAll(ctx)
		require.Len(t, items, 1)
		assert.Equal(t, "TV9", items[0].TvAppID)

		require.NoError(t, m.ReplaceAll(ctx, nil))
	})

	t.Run("BulkRemove", func(t *testing.T) {
		q1, _ := m.Add(ctx, apiItem("TV3", "07.08.2030 19:00:00"))
		q2, _ := m.Add(ctx, apiItem("TV4", "07.08.2030 20:00:00"))

		rec := doJSON(t, h, http.MethodDelete, "/api/v1/queue", map[string]any{
			"ids": []string{q1[0].ID, q2[1].ID},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		left, _ := m.GetAll(ctx)
		assert.Empty(t, left)
	})
}

func TestProcessingEndpoints(t *testing.T) {
	srv, m := newTestServer(t, config.APIConfig{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/processing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state models.ProcessingState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.IsProcessing)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/processing", map[string]any{
		"action":          "start",
		"interval_min_ms": 50,
		"interval_max_ms": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, m.State().IsProcessing)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/processing", map[string]any{"action": "stop"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, m.State().IsProcessing)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/processing", map[string]any{"action": "reset"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, m := newTestServer(t, config.APIConfig{})
	h := srv.Handler()

	_, err := m.Add(context.Background(), apiItem("TV1", "07.08.2030 19:00:00"))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.StatusInProgress])
}

func TestExportEndpoint(t *testing.T) {
	srv, m := newTestServer(t, config.APIConfig{})
	h := srv.Handler()

	_, err := m.Add(context.Background(), apiItem("TV1", "07.08.2030 19:00:00"))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func TestAuth(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "full-access", Name: "admin"},
				{Key: "readonly", Name: "dashboard", Permissions: []string{"read:queue"}},
			},
		},
	}
	srv, _ := newTestServer(t, cfg)
	h := srv.Handler()

	t.Run("MissingKey", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/queue", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
		req.Header.Set("x-api-key", "wrong")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("ValidKey", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
		req.Header.Set("x-api-key", "full-access")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/processing", bytes.NewBufferString(`{"action":"stop"}`))
		req.Header.Set("x-api-key", "readonly")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("HealthBypassesAuth", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	srv, _ := newTestServer(t, cfg)
	h := srv.Handler()

	var limited bool
	for i := 0; i < 10; i++ {
		rec := doJSON(t, h, http.MethodGet, "/api/v1/queue", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	assert.True(t, limited, "burst exhausted requests must be limited")
}

func TestServerShutdownIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0})
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestRequiredPermission(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/queue", "read:queue"},
		{http.MethodPost, "/api/v1/queue", "write:queue"},
		{http.MethodDelete, "/api/v1/queue/abc", "write:queue"},
		{http.MethodPost, "/api/v1/processing", "control:processing"},
		{http.MethodGet, "/api/v1/stats", "read:queue"},
		{http.MethodGet, "/api/v1/export", "read:queue"},
		{http.MethodGet, "/healthz", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, requiredPermission(req), fmt.Sprintf("%s %s", tc.method, tc.path))
	}
}
