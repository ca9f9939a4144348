package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sportsdvr/internal/api"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/retention"
	"github.com/ManuGH/sportsdvr/internal/scoring"
	"github.com/ManuGH/sportsdvr/internal/subscription"
	"github.com/ManuGH/sportsdvr/internal/version"
)

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	reply := func(status int, v any) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(v)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/subscriptions", reply(http.StatusOK, api.SubscriptionList{
		Subscriptions: []subscription.Subscription{
			{ID: "sub-1", Name: "Lakers", Kind: subscription.KindTeam, Priority: 10, KeepLast: 3, Enabled: true},
		},
	}))
	mux.HandleFunc("POST /api/score", func(w http.ResponseWriter, r *http.Request) {
		var req api.ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reply(http.StatusOK, scoring.ScoredProgram{
			OriginalTitle: req.Title,
			CleanTitle:    req.Title,
			Team1:         "Lakers",
			Team2:         "Celtics",
			Score:         85,
			IsLikelyGame:  true,
			HasMatchup:    true,
		})(w, r)
	})
	mux.HandleFunc("POST /api/scan", reply(http.StatusConflict, api.ErrorResponse{
		Error:  "budget_not_configured",
		Detail: "concurrency budget is 0",
	}))
	mux.HandleFunc("POST /api/scan/dry-run", reply(http.StatusOK, dvr.ScanReport{
		RunID:   "run-1",
		Trigger: dvr.TriggerDryRun,
		Status:  dvr.StatusSuccess,
		DryRun:  true,
		Budget:  2,
		Decisions: []dvr.Decision{{
			Program:          dvr.Program{Title: "Lakers vs Celtics", ChannelName: "ESPN"},
			SubscriptionName: "Lakers",
			Action:           dvr.ActionCreateTimer,
		}},
	}))
	mux.HandleFunc("GET /api/retention/plan", reply(http.StatusOK, retention.Report{
		DryRun:    true,
		Evaluated: 2,
		Planned: []retention.Planned{{
			SubscriptionName: "Lakers",
			Recording:        retention.Recording{Title: "Lakers vs Heat"},
			Reasons:          []retention.Reason{retention.ReasonKeepLast},
		}},
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--addr", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSubsList(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "subs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "sub-1")
	assert.Contains(t, out, "Lakers")
	assert.Contains(t, out, "team")
}

func TestSubsList_JSON(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "--json", "subs", "list")
	require.NoError(t, err)

	var list api.SubscriptionList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Subscriptions, 1)
	assert.Equal(t, "sub-1", list.Subscriptions[0].ID)
}

func TestScore(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "score", "Lakers", "vs", "Celtics", "--channel", "ESPN")
	require.NoError(t, err)
	assert.Contains(t, out, "Lakers vs Celtics")
	assert.Contains(t, out, "85")
	assert.Contains(t, out, "Lakers / Celtics")
}

func TestScan_ErrorCarriesDetail(t *testing.T) {
	_, err := runCLI(t, fakeDaemon(t), "scan")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "budget_not_configured", apiErr.Code)
	assert.Contains(t, err.Error(), "concurrency budget is 0")
}

func TestScanDryRun(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "scan", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Lakers vs Celtics")
	assert.Contains(t, out, "CreateTimer")
}

func TestRetentionPlan(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "retention", "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "Retention dry run")
	assert.Contains(t, out, "Lakers vs Heat")
	assert.Contains(t, out, "keep_last")
}

func TestUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := runCLI(t, srv, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to daemon")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "3")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestVersionFlag(t *testing.T) {
	out, err := runCLI(t, fakeDaemon(t), "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}
