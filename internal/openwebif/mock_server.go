// SPDX-License-Identifier: MIT
package openwebif

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockServer is a stateful OpenWebIF receiver for tests.
type MockServer struct {
	*httptest.Server
	mu       sync.Mutex
	bouquets []Service
	events   map[string][]EPGEvent
	timers   []TimerEntry
	movies   []Movie
	failures map[string]int // Number of 500 answers before success per endpoint
	calls    map[string]int
	// LastQuery holds the last query string per endpoint.
	LastQuery map[string]string
}

// NewMockServer creates a new OpenWebIF mock server.
func NewMockServer() *MockServer {
	m := &MockServer{
		events:    make(map[string][]EPGEvent),
		failures:  make(map[string]int),
		calls:     make(map[string]int),
		LastQuery: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/getallservices", m.wrap(m.handleServices))
	mux.HandleFunc("/api/epgservice", m.wrap(m.handleEPG))
	mux.HandleFunc("/api/timerlist", m.wrap(m.handleTimerList))
	mux.HandleFunc("/api/timeradd", m.wrap(m.handleTimerAdd))
	mux.HandleFunc("/api/timerdelete", m.wrap(m.handleTimerDelete))
	mux.HandleFunc("/api/movielist", m.wrap(m.handleMovieList))
	mux.HandleFunc("/api/moviedelete", m.wrap(m.handleMovieDelete))

	m.Server = httptest.NewServer(mux)
	return m
}

// AddBouquet adds a bouquet with its services as (ref, name) pairs.
func (m *MockServer) AddBouquet(name string, services ...[2]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Service{Name: name, Ref: "1:7:1:0:0:0:0:0:0:0:FROM BOUQUET \"userbouquet." + strings.ToLower(name) + ".tv\" ORDER BY bouquet"}
	for _, s := range services {
		b.SubServices = append(b.SubServices, Service{Ref: s[0], Name: s[1]})
	}
	m.bouquets = append(m.bouquets, b)
}

// AddEPGEvent adds an EPG event for a service.
func (m *MockServer) AddEPGEvent(serviceRef string, event EPGEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[serviceRef] = append(m.events[serviceRef], event)
}

// AddTimer adds an existing timer.
func (m *MockServer) AddTimer(t TimerEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, t)
}

// AddMovie adds a finished recording.
func (m *MockServer) AddMovie(mv Movie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movies = append(m.movies, mv)
}

// Timers returns a copy of the current timers.
func (m *MockServer) Timers() []TimerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TimerEntry(nil), m.timers...)
}

// Movies returns a copy of the current recordings.
func (m *MockServer) Movies() []Movie {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Movie(nil), m.movies...)
}

// SetFailures sets the number of failures before success for an endpoint.
func (m *MockServer) SetFailures(endpoint string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[endpoint] = count
}

// Calls returns how often an endpoint was hit.
func (m *MockServer) Calls(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[endpoint]
}

func (m *MockServer) wrap(h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.calls[r.URL.Path]++
		m.LastQuery[r.URL.Path] = r.URL.RawQuery
		if n := m.failures[r.URL.Path]; n > 0 {
			m.failures[r.URL.Path] = n - 1
			m.mu.Unlock()
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}
}

func (m *MockServer) handleServices(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(ServicesResponse{Services: m.bouquets})
}

func (m *MockServer) handleEPG(w http.ResponseWriter, r *http.Request) {
	sRef := r.URL.Query().Get("sRef")
	if sRef == "" {
		http.Error(w, "Missing sRef parameter", http.StatusBadRequest)
		return
	}
	events := m.events[sRef]
	if events == nil {
		events = []EPGEvent{}
	}
	_ = json.NewEncoder(w).Encode(EPGResponse{Events: events, Result: true})
}

func (m *MockServer) handleTimerList(w http.ResponseWriter, _ *http.Request) {
	timers := m.timers
	if timers == nil {
		timers = []TimerEntry{}
	}
	_ = json.NewEncoder(w).Encode(TimerListResponse{Result: true, Timers: timers})
}

func (m *MockServer) handleTimerAdd(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	begin, _ := strconv.ParseInt(q.Get("begin"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("end"), 10, 64)
	eit, _ := strconv.ParseInt(q.Get("eit"), 10, 64)
	sRef := q.Get("sRef")

	for _, t := range m.timers {
		if t.ServiceRef == sRef && int64(t.Begin) < end && begin < int64(t.End) {
			_ = json.NewEncoder(w).Encode(Response{Result: false, Message: "Conflicting Timer(s) detected!"})
			return
		}
	}
	m.timers = append(m.timers, TimerEntry{
		ServiceRef:  sRef,
		Name:        q.Get("name"),
		Description: q.Get("description"),
		Begin:       IntOrStringInt64(begin),
		End:         IntOrStringInt64(end),
		EIT:         IntOrStringInt64(eit),
		Tags:        q.Get("tags"),
	})
	_ = json.NewEncoder(w).Encode(Response{Result: true, Message: "Timer added"})
}

func (m *MockServer) handleTimerDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	begin, _ := strconv.ParseInt(q.Get("begin"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("end"), 10, 64)
	for i, t := range m.timers {
		if t.ServiceRef == q.Get("sRef") && int64(t.Begin) == begin && int64(t.End) == end {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			_ = json.NewEncoder(w).Encode(Response{Result: true, Message: "The timer has been deleted"})
			return
		}
	}
	_ = json.NewEncoder(w).Encode(Response{Result: false, Message: "Timer not found"})
}

func (m *MockServer) handleMovieList(w http.ResponseWriter, _ *http.Request) {
	movies := m.movies
	if movies == nil {
		movies = []Movie{}
	}
	_ = json.NewEncoder(w).Encode(MovieList{Movies: movies, Directory: "/media/hdd/movie/", Result: true})
}

func (m *MockServer) handleMovieDelete(w http.ResponseWriter, r *http.Request) {
	sRef := r.URL.Query().Get("sRef")
	for i, mv := range m.movies {
		if mv.ServiceRef == sRef {
			m.movies = append(m.movies[:i], m.movies[i+1:]...)
			_ = json.NewEncoder(w).Encode(MovieDeleteResponse{Result: true, Message: "The movie was deleted"})
			return
		}
	}
	_ = json.NewEncoder(w).Encode(MovieDeleteResponse{Result: false, Message: "Could not delete movie"})
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}
