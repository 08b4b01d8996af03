// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/health"
	"github.com/ManuGH/bundled/internal/history"
	"github.com/ManuGH/bundled/internal/lifecycle"
	"github.com/ManuGH/bundled/internal/retry"
	"github.com/ManuGH/bundled/internal/updater"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBundle struct {
	info cache.Info
	out  updater.Outcome
	at   time.Time
}

func (f fakeBundle) Info() (cache.Info, error)          { return f.info, nil }
func (f fakeBundle) Last() (updater.Outcome, time.Time) { return f.out, f.at }

type fakeRecovery struct {
	mu      sync.Mutex
	chosen  []int
	pending error
}

func (f *fakeRecovery) Choices() []string { return []string{"Reload", "Delete bundle.js"} }
func (f *fakeRecovery) Pending() error    { return f.pending }
func (f *fakeRecovery) Choose(_ context.Context, i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chosen = append(f.chosen, i)
	return nil
}

type fakeDevMenu struct {
	enabled bool
	shown   int
}

func (f *fakeDevMenu) DeveloperSupport() bool { return f.enabled }
func (f *fakeDevMenu) ShowDevMenu(context.Context) error {
	f.shown++
	return nil
}

type fakeHistory struct {
	runs  []history.Run
	limit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Run, error) {
	f.limit = limit
	return f.runs[:min(limit, len(f.runs))], nil
}

type harness struct {
	srv        *Server
	recovery   *fakeRecovery
	devMenu    *fakeDevMenu
	activities []lifecycle.Activity
}

func newHarness(t *testing.T, bundle fakeBundle) *harness {
	t.Helper()
	h := &harness{recovery: &fakeRecovery{}, devMenu: &fakeDevMenu{enabled: true}}
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewBundleChecker(bundle.Info))
	h.srv = New(Deps{
		Health: hm,
		Bundle: bundle,
		Activity: func(_ context.Context, a lifecycle.Activity) error {
			h.activities = append(h.activities, a)
			return nil
		},
		Recovery:    h.recovery,
		DevMenu:     h.devMenu,
		ActionLimit: 100,
	})
	h.srv.actions = func(f func()) { f() }
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestProbes(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/readyz", "").Code)

	h = newHarness(t, fakeBundle{info: cache.Info{HasBundle: true, Size: 10}})
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	rec := h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bundled_sticky_error")
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = h.do(http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestGetBundle(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := newHarness(t, fakeBundle{
		info: cache.Info{HasBundle: true, Size: 42, Token: `"v9"`},
		out:  updater.Outcome{Kind: updater.KindFailed, Err: errors.New("status 502"), URL: "https://example.invalid/b.js"},
		at:   at,
	})
	h.recovery.pending = errors.New("status 502")

	rec := h.do(http.MethodGet, "/api/v1/bundle", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body bundleJSON
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Cache.HasBundle)
	assert.EqualValues(t, 42, body.Cache.Size)
	require.NotNil(t, body.LastRun)
	assert.Equal(t, "failed", body.LastRun.Outcome)
	assert.Equal(t, "status 502", body.LastRun.Error)
	assert.True(t, body.LastRun.FinishedAt.Equal(at))
	assert.Equal(t, "status 502", body.PendingRetry)
}

func TestGetHistory(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	rec := h.do(http.MethodGet, "/api/v1/bundle/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no history store configured")

	hist := &fakeHistory{runs: []history.Run{
		{ID: 2, JobID: "j2", Trigger: "retry", Outcome: "updated", Bytes: 10},
		{ID: 1, JobID: "j1", Trigger: "load", Outcome: "failed", Error: "timeout"},
	}}
	h.srv.deps.History = hist

	rec = h.do(http.MethodGet, "/api/v1/bundle/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, hist.limit)
	var body struct {
		Runs []history.Run `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Runs, 2)
	assert.Equal(t, "j2", body.Runs[0].JobID)

	rec = h.do(http.MethodGet, "/api/v1/bundle/history?limit=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxHistoryLimit, hist.limit)

	rec = h.do(http.MethodGet, "/api/v1/bundle/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostActivity(t *testing.T) {
	h := newHarness(t, fakeBundle{})

	rec := h.do(http.MethodPost, "/api/v1/activity", `{"id":"main","name":"MainActivity"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/activity", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/activity", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Len(t, h.activities, 2)
	assert.Equal(t, "MainActivity", h.activities[0].Name)
	assert.NotEmpty(t, h.activities[1].ID)
}

func TestRecoveryRoutes(t *testing.T) {
	h := newHarness(t, fakeBundle{})

	rec := h.do(http.MethodGet, "/api/v1/recovery", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Delete bundle.js")

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/recovery/reload", "").Code)
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/recovery/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/recovery/7", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/recovery/nuke", "").Code)

	assert.Equal(t, []int{retry.ChoiceReload, retry.ChoiceDeleteAndReload}, h.recovery.chosen)
}

func TestDevMenuRoute(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/devmenu", "").Code)
	assert.Equal(t, 1, h.devMenu.shown)

	h.devMenu.enabled = false
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/v1/devmenu", "").Code)
	assert.Equal(t, 1, h.devMenu.shown)
}

func TestActionRateLimit(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	h.srv = New(Deps{
		Health:      health.NewManager("test"),
		Bundle:      fakeBundle{},
		Activity:    func(context.Context, lifecycle.Activity) error { return nil },
		Recovery:    h.recovery,
		ActionLimit: 2,
	})

	codes := []int{}
	for range 3 {
		codes = append(codes, h.do(http.MethodPost, "/api/v1/activity", "").Code)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
	// read routes are not limited
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/recovery", "").Code)
}

func TestRecovererReturns500(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNotFoundIsJSON(t *testing.T) {
	h := newHarness(t, fakeBundle{})
	rec := h.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
