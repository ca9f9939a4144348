// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sportsdvr/internal/alias"
	"github.com/ManuGH/sportsdvr/internal/config"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/health"
	"github.com/ManuGH/sportsdvr/internal/match"
	"github.com/ManuGH/sportsdvr/internal/openwebif"
	"github.com/ManuGH/sportsdvr/internal/retention"
	"github.com/ManuGH/sportsdvr/internal/scoring"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

const refESPN = "1:0:19:283D:3FB:1:C00000:0:0:0:"

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv     *Server
	mock    *openwebif.MockServer
	service *dvr.Service
	holder  *fakeHolder
}

type fakeHolder struct {
	cfg       config.AppConfig
	reloadErr error
	reloads   int
}

func (h *fakeHolder) Get() config.AppConfig { return h.cfg }

func (h *fakeHolder) Reload(context.Context) error {
	h.reloads++
	return h.reloadErr
}

func newFixture(t *testing.T, budget int) fixture {
	t.Helper()
	dir := t.TempDir()

	mock := openwebif.NewMockServer()
	t.Cleanup(mock.Close)
	mock.AddBouquet("Sports", [2]string{refESPN, "ESPN"})
	mock.AddEPGEvent(refESPN, openwebif.EPGEvent{
		ID: "4711", Title: "Lakers vs Celtics", ShortDesc: "NBA Regular Season",
		Begin: openwebif.IntOrStringInt64(testNow.Add(2 * time.Hour).Unix()), Duration: 10800, GenreID: 0x40,
	})
	client := openwebif.New(mock.URL(), openwebif.Options{Timeout: 2 * time.Second, RateLimit: 1000, RateBurst: 1000})

	reg := alias.NewRegistry(nil)
	store := subscription.NewStore(dir)
	require.NoError(t, store.Load())
	engine := dvr.NewEngine(dvr.EngineConfig{
		Guide:         client,
		Timers:        client,
		Subscriptions: store,
		Planner:       dvr.NewPlanner(reg, match.New(reg, match.Options{AliasMatching: true})),
		Settings:      dvr.Settings{Budget: budget},
		Now:           func() time.Time { return testNow },
	})
	svc := dvr.NewService(dvr.ServiceConfig{
		Engine: engine, Store: store, Aliases: reg, Guide: client, DataDir: dir,
		Now: func() time.Time { return testNow },
	})
	ret := retention.NewManager(store, client, retention.Options{})

	holder := &fakeHolder{cfg: config.Defaults()}
	holder.cfg.Receiver.Password = "hunter2"

	srv, err := New(Deps{Service: svc, Retention: ret, Breaker: client.Breaker(), Config: holder, Version: "test"})
	require.NoError(t, err)
	return fixture{srv: srv, mock: mock, service: svc, holder: holder}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:5555"
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 1)
	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Receiver: "closed"}, decode[HealthResponse](t, w))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestReadyz(t *testing.T) {
	f := newFixture(t, 1)
	w := f.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[health.ReadinessResponse](t, w)
	assert.True(t, resp.Ready)
	assert.Equal(t, "test", resp.Version)

	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewFuncChecker("scheduled_cache", func(context.Context) error {
		return errors.New("redis down")
	}))
	f.srv.deps.Health = hm
	w = f.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp = decode[health.ReadinessResponse](t, w)
	assert.False(t, resp.Ready)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "redis down", resp.Checks["scheduled_cache"].Error)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 1)
	f.do(t, http.MethodGet, "/healthz", nil)
	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sportsdvr_http_requests_total")
}

func TestSubscriptionsCRUD(t *testing.T) {
	f := newFixture(t, 1)

	w := f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Name: "Lakers", Kind: subscription.KindTeam, Priority: 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[subscription.Subscription](t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/subscriptions/"+created.ID, w.Header().Get("Location"))

	w = f.do(t, http.MethodGet, "/api/subscriptions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lakers", decode[subscription.Subscription](t, w).Name)

	upd := created
	upd.Priority = 9
	w = f.do(t, http.MethodPut, "/api/subscriptions/"+created.ID, upd)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 9, decode[subscription.Subscription](t, w).Priority)

	w = f.do(t, http.MethodPost, "/api/subscriptions/"+created.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, !created.Enabled, decode[subscription.Subscription](t, w).Enabled)

	w = f.do(t, http.MethodGet, "/api/subscriptions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[SubscriptionList](t, w).Subscriptions, 1)

	w = f.do(t, http.MethodDelete, "/api/subscriptions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/subscriptions/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotFound, decode[ErrorResponse](t, w).Error)
}

func TestSubscriptions_Invalid(t *testing.T) {
	f := newFixture(t, 1)

	w := f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Kind: "planet"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeInvalidRequest, decode[ErrorResponse](t, w).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(`{"name":"x","bogus":1}`))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptions_Reorder(t *testing.T) {
	f := newFixture(t, 1)
	a := decode[subscription.Subscription](t, f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Name: "Lakers", Kind: subscription.KindTeam}))
	b := decode[subscription.Subscription](t, f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Name: "NBA", Kind: subscription.KindLeague}))

	w := f.do(t, http.MethodPut, "/api/subscriptions/order", ReorderRequest{IDs: []string{b.ID, a.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[SubscriptionList](t, w).Subscriptions
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestScore(t *testing.T) {
	f := newFixture(t, 1)
	w := f.do(t, http.MethodPost, "/api/score", ScoreRequest{Title: "Lakers vs Warriors - NBA", Channel: "ESPN"})
	require.Equal(t, http.StatusOK, w.Code)
	sp := decode[scoring.ScoredProgram](t, w)
	assert.True(t, sp.IsLikelyGame)
	assert.Equal(t, "NBA", sp.League)

	w = f.do(t, http.MethodPost, "/api/score", ScoreRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTestSubscription(t *testing.T) {
	f := newFixture(t, 1)
	w := f.do(t, http.MethodPost, "/api/subscriptions/test", TestRequest{
		Subscription: subscription.Subscription{Name: "Lakers"}, HorizonHours: 24,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dvr.MatchTestResult](t, w)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Lakers vs Celtics", res.Matches[0].Program.Title)
	assert.True(t, res.Matches[0].WouldRecord)

	sub := decode[subscription.Subscription](t, f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Name: "Celtics", Kind: subscription.KindTeam}))
	w = f.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/test?horizonHours=24", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[dvr.MatchTestResult](t, w).Matches, 1)

	w = f.do(t, http.MethodPost, "/api/subscriptions/"+sub.ID+"/test?horizonHours=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScan_CreatesTimerAndReports(t *testing.T) {
	f := newFixture(t, 1)
	f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Name: "Lakers", Kind: subscription.KindTeam, Enabled: true})

	w := f.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ScanResponse](t, w)
	assert.Equal(t, dvr.StatusSuccess, res.Status)
	assert.Equal(t, 1, res.NewRecordings)
	require.Len(t, f.mock.Timers(), 1)
	assert.Contains(t, f.mock.Timers()[0].Tags, openwebif.TagManaged)

	w = f.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[ScanResponse](t, w)
	assert.Equal(t, 0, res.NewRecordings)
	assert.Equal(t, 1, res.AlreadyScheduled)

	w = f.do(t, http.MethodGet, "/api/scan/last", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, res.RunID, decode[dvr.ScanReport](t, w).RunID)

	w = f.do(t, http.MethodGet, "/api/scan/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[ScheduledList](t, w).Entries, 1)

	w = f.do(t, http.MethodPost, "/api/timers/cancel-managed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dvr.CancelResult](t, w).Cancelled)
	assert.Empty(t, f.mock.Timers())
}

func TestScan_RefusedWithoutBudget(t *testing.T) {
	f := newFixture(t, 0)
	w := f.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode[ErrorResponse](t, w)
	assert.Equal(t, codeBudgetMissing, body.Error)
	assert.Contains(t, body.Detail, "concurrency budget")
}

func TestScan_LastBeforeAnyScan(t *testing.T) {
	f := newFixture(t, 1)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/scan/last", nil).Code)
}

func TestDryRun_NoSideEffects(t *testing.T) {
	f := newFixture(t, 1)
	f.do(t, http.MethodPost, "/api/subscriptions", subscription.Subscription{Name: "Lakers", Kind: subscription.KindTeam, Enabled: true})

	w := f.do(t, http.MethodPost, "/api/scan/dry-run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[dvr.ScanReport](t, w)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Summary.TimersPlanned)
	assert.Empty(t, f.mock.Timers())
}

func TestClearCacheAndCancelAll(t *testing.T) {
	f := newFixture(t, 1)
	f.mock.AddTimer(openwebif.TimerEntry{ServiceRef: refESPN, Name: "Manual", Begin: 100, End: 200})

	w := f.do(t, http.MethodDelete, "/api/scan/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[CountResponse](t, w).Count)

	w = f.do(t, http.MethodPost, "/api/timers/cancel-all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[CountResponse](t, w).Count)
	assert.Empty(t, f.mock.Timers())
}

func TestAliases(t *testing.T) {
	f := newFixture(t, 1)

	w := f.do(t, http.MethodPut, "/api/aliases/Showtime", AliasRequest{Aliases: []string{"LakeShow"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	entry := decode[dvr.AliasEntry](t, w)
	assert.True(t, entry.Custom)
	assert.Equal(t, "Showtime", entry.Canonical)

	w = f.do(t, http.MethodGet, "/api/aliases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[AliasList](t, w).Aliases, 1)

	w = f.do(t, http.MethodGet, "/api/aliases/LakeShow", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entry.Canonical, decode[dvr.AliasEntry](t, w).Canonical)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/aliases/"+entry.Canonical, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/aliases/"+entry.Canonical, nil).Code)
}

func TestRetention(t *testing.T) {
	f := newFixture(t, 1)
	sub := decode[subscription.Subscription](t, f.do(t, http.MethodPost, "/api/subscriptions",
		subscription.Subscription{Name: "Lakers", Kind: subscription.KindTeam, KeepLast: 1}))
	tag := openwebif.SubscriptionTag(sub.ID)
	f.mock.AddMovie(openwebif.Movie{ServiceRef: "rec-old", Title: "Lakers vs Suns", Tags: tag, Begin: 1000})
	f.mock.AddMovie(openwebif.Movie{ServiceRef: "rec-new", Title: "Lakers vs Celtics", Tags: tag, Begin: 2000})

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/retention/last", nil).Code)

	w := f.do(t, http.MethodGet, "/api/retention/plan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan := decode[retention.Report](t, w)
	require.Len(t, plan.Planned, 1)
	assert.Equal(t, "rec-old", plan.Planned[0].Recording.ID)
	assert.Len(t, f.mock.Movies(), 2)

	w = f.do(t, http.MethodPost, "/api/retention/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[retention.Report](t, w).Deleted)
	assert.Len(t, f.mock.Movies(), 1)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/retention/last", nil).Code)
}

func TestConfigEndpoints(t *testing.T) {
	f := newFixture(t, 1)

	w := f.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/config/reload", nil).Code)
	assert.Equal(t, 1, f.holder.reloads)

	f.holder.reloadErr = errors.New("invalid configuration: bad dailyAt")
	w = f.do(t, http.MethodPost, "/api/config/reload", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Detail, "dailyAt")
}

func TestStatus(t *testing.T) {
	f := newFixture(t, 2)
	w := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[StatusResponse](t, w)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, 2, st.Budget)
	assert.Equal(t, 72, st.HorizonHours)
	assert.Nil(t, st.LastScan)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, 1)
	w := f.do(t, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotFound, decode[ErrorResponse](t, w).Error)

	w = f.do(t, http.MethodPatch, "/api/score", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
