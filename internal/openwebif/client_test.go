// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/retention"
)

const (
	refESPN  = "1:0:19:283D:3FB:1:C00000:0:0:0:"
	refSky   = "1:0:19:2855:401:1:C00000:0:0:0:"
	refEvent = "1:0:1:6DCA:44D:1:C00000:0:0:0:"
)

var guideStart = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*MockServer, *Client) {
	t.Helper()
	m := NewMockServer()
	t.Cleanup(m.Close)
	m.AddBouquet("Sports", [2]string{refESPN, "ESPN"}, [2]string{"1:64:1:0:0:0:0:0:0:0::--- Sports ---", "--- Sports ---"}, [2]string{refSky, "Sky Sports"})
	m.AddBouquet("Favourites", [2]string{refSky, "Sky Sports"}, [2]string{refEvent, "DAZN 1"})
	return m, New(m.URL(), Options{Timeout: 2 * time.Second, RateLimit: 1000, RateBurst: 1000})
}

func TestListChannels_FlattensAndDedupes(t *testing.T) {
	_, c := newMock(t)

	chs, err := c.ListChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []dvr.Channel{
		{ID: refESPN, Name: "ESPN"},
		{ID: refSky, Name: "Sky Sports"},
		{ID: refEvent, Name: "DAZN 1"},
	}, chs)
}

func TestListPrograms_MapsEvents(t *testing.T) {
	m, c := newMock(t)
	m.AddEPGEvent(refESPN, EPGEvent{
		ID: "4711", Title: "Lakers vs Celtics", ShortDesc: "NBA Regular Season", LongDesc: "From Crypto.com Arena",
		Begin: IntOrStringInt64(guideStart.Unix()), Duration: 10800, GenreID: 0x40, Genre: "Sports",
	})
	m.AddEPGEvent(refESPN, EPGEvent{
		ID: "4712", Title: "SportsCenter", Begin: IntOrStringInt64(guideStart.Add(-3 * time.Hour).Unix()), Duration: 3600, GenreID: 0x20,
	})
	m.AddEPGEvent(refESPN, EPGEvent{ID: "4713", Title: "", Begin: IntOrStringInt64(guideStart.Unix()), Duration: 60})

	progs, err := c.ListPrograms(context.Background(), refESPN, guideStart, guideStart.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, progs, 1, "events outside the window and untitled events are dropped")

	p := progs[0]
	assert.Equal(t, ProgramID(refESPN, "4711"), p.ID)
	assert.Equal(t, "Lakers vs Celtics", p.Title)
	assert.Equal(t, refESPN, p.ChannelID)
	assert.True(t, p.IsSportsCategory)
	assert.Equal(t, []string{"Sports"}, p.Genres)
	assert.Equal(t, guideStart.Add(3*time.Hour), p.End)
	assert.Equal(t, "NBA Regular Season\nFrom Crypto.com Arena", p.Description)

	q, err := url.ParseQuery(m.LastQuery["/api/epgservice"])
	require.NoError(t, err)
	assert.Equal(t, refESPN, q.Get("sRef"))
	assert.Equal(t, "1440", q.Get("endTime"))
}

func TestTimers_CreateListCancel(t *testing.T) {
	m, c := newMock(t)
	prog := dvr.Program{
		ID: ProgramID(refESPN, "4711"), Title: "Lakers vs Celtics", ChannelID: refESPN,
		Start: guideStart, End: guideStart.Add(3 * time.Hour),
	}
	m.AddTimer(TimerEntry{ServiceRef: refSky, ServiceName: "Sky Sports", Name: "Manual", Begin: 100, End: 200})

	id, err := c.CreateTimer(context.Background(), dvr.TimerRequest{Program: prog, Priority: 5, SubscriptionID: "sub-1"})
	require.NoError(t, err)

	created := m.Timers()[1]
	assert.Equal(t, "sportsdvr sportsdvr_sub_sub-1 sportsdvr_prio_5", created.Tags)
	assert.Equal(t, IntOrStringInt64(4711), created.EIT)

	timers, err := c.ListTimers(context.Background())
	require.NoError(t, err)
	require.Len(t, timers, 2)
	assert.False(t, timers[0].Managed)

	managed := timers[1]
	assert.Equal(t, id, managed.ID)
	assert.True(t, managed.Managed)
	assert.Equal(t, "sub-1", managed.SubscriptionID)
	assert.Equal(t, 5, managed.Priority)
	assert.Equal(t, prog.ID, managed.ProgramID)
	assert.Equal(t, prog.Start, managed.Start)

	require.NoError(t, c.CancelTimer(context.Background(), id))
	assert.Len(t, m.Timers(), 1)

	err = c.CancelTimer(context.Background(), id)
	assert.True(t, IsTimerNotFound(err), err)
	assert.ErrorIs(t, err, dvr.ErrTimerNotFound)
}

func TestCreateTimer_ConflictIsTyped(t *testing.T) {
	m, c := newMock(t)
	m.AddTimer(TimerEntry{ServiceRef: refESPN, Begin: IntOrStringInt64(guideStart.Unix()), End: IntOrStringInt64(guideStart.Add(time.Hour).Unix())})

	_, err := c.CreateTimer(context.Background(), dvr.TimerRequest{Program: dvr.Program{
		ID: ProgramID(refESPN, "1"), Title: "Game", ChannelID: refESPN, Start: guideStart, End: guideStart.Add(2 * time.Hour),
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, IsTimerConflict(err))
	assert.ErrorIs(t, err, dvr.ErrTimerConflict)
}

func TestCancelAll_DeletesEveryTimer(t *testing.T) {
	m, c := newMock(t)
	m.AddTimer(TimerEntry{ServiceRef: refSky, Begin: 100, End: 200})
	m.AddTimer(TimerEntry{ServiceRef: refESPN, Begin: 300, End: 400, Tags: TagManaged})
	m.AddTimer(TimerEntry{ServiceRef: refESPN, Begin: 10, End: 20, State: timerStateEnded})

	n, err := c.CancelAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, m.Timers(), 1, "finished timers are left alone")
}

func TestTimerID_RoundTrip(t *testing.T) {
	id := MakeTimerID(refESPN, 1000, 2000)
	sRef, begin, end, err := ParseTimerID(id)
	require.NoError(t, err)
	assert.Equal(t, refESPN, sRef)
	assert.EqualValues(t, 1000, begin)
	assert.EqualValues(t, 2000, end)

	_, _, _, err = ParseTimerID("not base64!")
	assert.ErrorIs(t, err, ErrInvalidTimerID)
}

func TestRecordings_ListCompletedAndDelete(t *testing.T) {
	m, c := newMock(t)
	aired := guideStart.Add(-48 * time.Hour)
	m.AddMovie(Movie{ServiceRef: "1:0:0:0:0:0:0:0:0:0:/media/hdd/movie/a.ts", Title: "Lakers vs Celtics", Filename: "/media/hdd/movie/a.ts", Tags: "sportsdvr sportsdvr_sub_sub-1", Begin: IntOrStringInt64(aired.Unix())})
	m.AddMovie(Movie{ServiceRef: "1:0:0:0:0:0:0:0:0:0:/media/hdd/movie/b.ts", Title: "Other", Tags: "sportsdvr sportsdvr_sub_sub-2"})
	m.AddMovie(Movie{ServiceRef: "1:0:0:0:0:0:0:0:0:0:/media/hdd/movie/c.ts", Title: "Manual"})

	recs, err := c.ListCompleted(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, []retention.Recording{{
		ID:             "1:0:0:0:0:0:0:0:0:0:/media/hdd/movie/a.ts",
		SubscriptionID: "sub-1",
		Title:          "Lakers vs Celtics",
		AiredAt:        aired,
		Path:           "/media/hdd/movie/a.ts",
	}}, recs)

	require.NoError(t, c.Delete(context.Background(), recs[0].ID))
	assert.Len(t, m.Movies(), 2)
	assert.Error(t, c.Delete(context.Background(), recs[0].ID))
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:            ErrNotFound,
		http.StatusForbidden:           ErrForbidden,
		http.StatusUnauthorized:        ErrForbidden,
		http.StatusConflict:            ErrConflict,
		http.StatusInternalServerError: ErrUpstreamError,
		http.StatusBadGateway:          ErrUpstreamError,
		http.StatusBadRequest:          ErrUpstreamBadResponse,
	}
	for status, want := range cases {
		assert.ErrorIs(t, classifyStatus(status), want, status)
	}
}

func TestClassifyTransport(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, classifyTransport(ctx, &net.DNSError{IsTimeout: true}), ErrTimeout)
	assert.ErrorIs(t, classifyTransport(ctx, context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classifyTransport(ctx, errors.New("connection refused")), ErrUpstreamUnavailable)
}

func TestErrorBodyIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "invalid token=1234-5678 sid=secret_123 password=hunter2"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(srv.URL, Options{}).ListChannels(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)

	var owiErr *OWIError
	require.ErrorAs(t, err, &owiErr)
	assert.Equal(t, "getallservices", owiErr.Operation)
	assert.Equal(t, http.StatusForbidden, owiErr.Status)
	assert.NotContains(t, err.Error(), "1234-5678")
	assert.NotContains(t, err.Error(), "secret_123")
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestCredentialsFromURL(t *testing.T) {
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		_, _ = w.Write([]byte(`{"services":[]}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u.User = url.UserPassword("root", "dreambox")

	c := New(u.String(), Options{})
	assert.Equal(t, srv.URL, c.BaseURL())
	_, err = c.ListChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "root", user)
	assert.Equal(t, "dreambox", pass)
}

func TestBreakerOpensOnOutages(t *testing.T) {
	m, _ := newMock(t)
	c := New(m.URL(), Options{BreakerThreshold: 2, BreakerReset: time.Hour})
	m.SetFailures("/api/timerlist", 10)

	for i := 0; i < 2; i++ {
		_, err := c.ListTimers(context.Background())
		assert.ErrorIs(t, err, ErrUpstreamError)
	}
	assert.Equal(t, StateOpen, c.Breaker().State())

	_, err := c.ListTimers(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 2, m.Calls("/api/timerlist"), "open breaker short-circuits")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()
	c := New(srv.URL, Options{BreakerThreshold: 1})

	for i := 0; i < 3; i++ {
		_, err := c.ListTimers(context.Background())
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, StateClosed, c.Breaker().State())
}
