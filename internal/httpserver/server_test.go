package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"github.com/Swrve/swrve-smarttv-sdk/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSDK struct {
	sent       []string
	flushes    int
	refreshErr error
}

func (f *fakeSDK) State() sdk.State { return sdk.StateActive }

func (f *fakeSDK) QueueSnapshot(context.Context) sdk.QueueSnapshot {
	return sdk.QueueSnapshot{
		UserID:   "user-1",
		State:    "active",
		InMemory: len(f.sent),
		Events:   []models.Event{},
	}
}

func (f *fakeSDK) CampaignsSnapshot() sdk.CampaignsSnapshot {
	return sdk.CampaignsSnapshot{
		UserID:                "user-1",
		MaxMessagesPerSession: 99999,
		Campaigns:             []sdk.CampaignSnapshot{{ID: 7, Status: "unseen", Triggers: []string{"level_up"}}},
	}
}

func (f *fakeSDK) GetResources(context.Context) []sdk.Resource {
	return []sdk.Resource{{"uid": "sword", "damage": "10"}}
}

func (f *fakeSDK) SendEvent(_ context.Context, name string, _ map[string]any) error {
	if strings.Contains(strings.ToLower(name), "swrve") {
		return fmt.Errorf("%w: %q", sdk.ErrInvalidEventName, name)
	}
	if name == "explode" {
		return errors.New("boom")
	}
	f.sent = append(f.sent, name)
	return nil
}

func (f *fakeSDK) SendQueuedEvents(context.Context) { f.flushes++ }

func (f *fakeSDK) UpdateCampaignsAndResources(context.Context) error { return f.refreshErr }

func newTestServer(t *testing.T, f *fakeSDK, mutate func(*Dependencies)) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	deps := &Dependencies{SDK: f, Config: cfg, Metrics: metrics.NewMetrics("test")}
	if mutate != nil {
		mutate(deps)
	}
	return NewServer(deps)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeSDK{}, nil)

	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sdk":"active"}`, rec.Body.String())
}

func TestHealthReportsFailingChecks(t *testing.T) {
	h := newTestServer(t, &fakeSDK{}, func(d *Dependencies) {
		d.Checks = map[string]HealthCheck{
			"redis":  func(context.Context) error { return nil },
			"sqlite": func(context.Context) error { return errors.New("disk full") },
		}
	})

	rec := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","sdk":"active","checks":{"redis":"ok","sqlite":"disk full"}}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeSDK{}, nil)

	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsCanBeDisabled(t *testing.T) {
	h := newTestServer(t, &fakeSDK{}, func(d *Dependencies) { d.Config.Metrics.Enabled = false })

	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSnapshots(t *testing.T) {
	h := newTestServer(t, &fakeSDK{}, nil)

	rec := do(h, http.MethodGet, "/debug/campaigns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap sdk.CampaignsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap.Campaigns, 1)
	assert.Equal(t, 7, snap.Campaigns[0].ID)

	rec = do(h, http.MethodGet, "/debug/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"user-1"`)

	rec = do(h, http.MethodGet, "/debug/resources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resources":[{"uid":"sword","damage":"10"}]}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/debug/queue", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInjectEvent(t *testing.T) {
	f := &fakeSDK{}
	h := newTestServer(t, f, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"name":"level_up","payload":{"level":"3"}}`, http.StatusAccepted},
		{"reserved name", `{"name":"Swrve.fake"}`, http.StatusBadRequest},
		{"missing name", `{"payload":{}}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"sdk failure", `{"name":"explode"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/debug/events", tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
	assert.Equal(t, []string{"level_up"}, f.sent)

	rec := do(h, http.MethodGet, "/debug/events", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFlushAndRefresh(t *testing.T) {
	f := &fakeSDK{}
	h := newTestServer(t, f, nil)

	rec := do(h, http.MethodPost, "/debug/flush", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.flushes)

	rec = do(h, http.MethodPost, "/debug/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.refreshErr = errors.New("offline")
	rec = do(h, http.MethodPost, "/debug/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"offline"}`, rec.Body.String())
}

func TestRateLimitedInjection(t *testing.T) {
	f := &fakeSDK{}
	h := newTestServer(t, f, func(d *Dependencies) {
		d.Config.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}
	})

	first := do(h, http.MethodPost, "/debug/events", `{"name":"a"}`)
	second := do(h, http.MethodPost, "/debug/events", `{"name":"b"}`)
	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, []string{"a"}, f.sent)
}

func TestDebugEndpointsRequireToken(t *testing.T) {
	f := &fakeSDK{}
	h := newTestServer(t, f, func(d *Dependencies) {
		d.Config.Auth = config.AuthConfig{Enabled: true, Token: "s3cret", SkipPaths: []string{"/health"}}
	})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/debug/flush", "").Code)
	assert.Zero(t, f.flushes)

	req := httptest.NewRequest(http.MethodPost, "/debug/flush", nil)
	req.Header.Set("X-Debug-Token", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.flushes)
}
