// Package httpapi exposes the read surface of the engine: the latest
// briefing, the feedback intake, health, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/anomaly"
	"github.com/founderpulse/insights/internal/briefing"
	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/domain"
	"github.com/founderpulse/insights/internal/metrics"
	"github.com/founderpulse/insights/internal/persistence"
	"github.com/founderpulse/insights/internal/recommend"
)

// Feedback fan-out targets. Each adaptive subsystem consumes the same
// event stream independently.
type adaptive struct {
	calibration *recommend.CalibrationStore
	thresholds  *anomaly.ThresholdStore
	engagement  *briefing.EngagementHistory
}

// Server wires the routes over the repositories and adaptive state.
type Server struct {
	cfg      config.Config
	repo     persistence.RunRepo
	feedback persistence.FeedbackRepo
	adapt    adaptive
	reg      *metrics.Registry
	srv      *http.Server
}

// New builds the server. reg may be nil to disable the metrics route.
func New(cfg config.Config, repo persistence.RunRepo, feedback persistence.FeedbackRepo,
	calibration *recommend.CalibrationStore, thresholds *anomaly.ThresholdStore,
	engagement *briefing.EngagementHistory, reg *metrics.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		repo:     repo,
		feedback: feedback,
		adapt:    adaptive{calibration: calibration, thresholds: thresholds, engagement: engagement},
		reg:      reg,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/briefings/latest", s.handleLatestBriefing).Methods(http.MethodGet)
	r.HandleFunc("/recommendations/{id}/status", s.handleRecommendationStatus).Methods(http.MethodPost)
	r.HandleFunc("/feedback", s.handleFeedback).Methods(http.MethodPost)
	if reg != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	s.srv = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server exits.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatestBriefing(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant query parameter is required")
		return
	}

	b, err := s.repo.LatestBriefing(r.Context(), tenant)
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant).Msg("latest briefing lookup failed")
		writeError(w, http.StatusInternalServerError, "briefing lookup failed")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "no briefing generated yet")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type statusRequest struct {
	Status domain.RecommendationStatus `json:"status"`
}

func (s *Server) handleRecommendationStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := recommend.Transition(domain.StatusPending, req.Status); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.repo.UpdateRecommendationStatus(r.Context(), id, req.Status); err != nil {
		log.Error().Err(err).Str("id", id).Msg("status update failed")
		writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

// handleFeedback persists the event and fans it out to every adaptive
// subsystem that can consume it.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb domain.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fb.Tenant == "" || fb.TargetID == "" || fb.Action == "" {
		writeError(w, http.StatusBadRequest, "tenant, target_id, and action are required")
		return
	}
	switch fb.Action {
	case domain.FeedbackAccepted, domain.FeedbackDismissed, domain.FeedbackIgnored:
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	if fb.At.IsZero() {
		fb.At = time.Now().UTC()
	}

	if err := s.feedback.SaveFeedback(r.Context(), fb); err != nil {
		log.Error().Err(err).Str("tenant", fb.Tenant).Msg("save feedback failed")
		writeError(w, http.StatusInternalServerError, "save feedback failed")
		return
	}

	if fb.RuleID != "" && s.adapt.calibration != nil {
		s.adapt.calibration.Apply(fb.Tenant, fb.RuleID, fb.Action)
	}
	if fb.KPIName != "" && s.adapt.thresholds != nil {
		s.adapt.thresholds.Feedback(fb.Tenant, fb.KPIName, fb.Action, s.cfg.Detector.AdaptiveStep)
	}
	if fb.ContentType != "" && s.adapt.engagement != nil {
		s.adapt.engagement.Record(fb.Tenant, fb.ContentType, fb.Action)
	}
	if s.reg != nil {
		s.reg.FeedbackEvents.WithLabelValues(string(fb.Action)).Inc()
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
