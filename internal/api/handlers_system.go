// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/sportsdvr/internal/config"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/health"
	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/openwebif"
	"github.com/ManuGH/sportsdvr/internal/retention"
)

// HealthResponse is the answer of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Receiver string `json:"receiver,omitempty"`
}

// StatusResponse is the answer of GET /api/status.
type StatusResponse struct {
	Version       string             `json:"version,omitempty"`
	UptimeSeconds int64              `json:"uptimeSeconds"`
	Receiver      string             `json:"receiver,omitempty"`
	Budget        int                `json:"budget"`
	HorizonHours  int                `json:"horizonHours"`
	AliasMatching bool               `json:"aliasMatching"`
	LastScan      *dvr.TriggerResult `json:"lastScan,omitempty"`
	LastScanAt    *time.Time         `json:"lastScanAt,omitempty"`
	LastRetention *retention.Report  `json:"lastRetention,omitempty"`
}

// handleHealth reports liveness. An open receiver breaker degrades the status
// but the answer stays 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if b := s.deps.Breaker; b != nil {
		resp.Receiver = b.State().String()
		if b.State() == openwebif.StateOpen {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, health.ReadinessResponse{Ready: true, Status: health.StatusHealthy, Version: s.deps.Version, Timestamp: time.Now()})
		return
	}
	s.deps.Health.ServeReady(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings := s.deps.Service.Engine().Settings()
	resp := StatusResponse{
		Version:       s.deps.Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Budget:        settings.Budget,
		HorizonHours:  int(settings.Horizon / time.Hour),
		AliasMatching: s.deps.Service.MatchOptions().AliasMatching,
	}
	if b := s.deps.Breaker; b != nil {
		resp.Receiver = b.State().String()
	}
	if last := s.deps.Service.LastReport(); last != nil {
		res := last.Result()
		resp.LastScan = &res
		at := last.FinishedAt
		resp.LastScanAt = &at
	}
	if s.deps.Retention != nil {
		resp.LastRetention = s.deps.Retention.LastReport()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, codeUnavailable, "configuration is not managed by this server")
		return
	}
	writeJSON(w, http.StatusOK, config.MaskSecrets(s.deps.Config.Get()))
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, codeUnavailable, "configuration is not managed by this server")
		return
	}
	if err := s.deps.Config.Reload(r.Context()); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_rejected").Msg("config reload rejected")
		writeErrorCode(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, config.MaskSecrets(s.deps.Config.Get()))
}
