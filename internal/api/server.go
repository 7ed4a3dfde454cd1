// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feedforge/harvester/internal/analyze"
	"github.com/feedforge/harvester/internal/config"
	"github.com/feedforge/harvester/internal/generate"
	"github.com/feedforge/harvester/internal/harvest"
	"github.com/feedforge/harvester/internal/metrics"
	"github.com/feedforge/harvester/internal/scrape"
	"github.com/feedforge/harvester/internal/sessions"
)

const recentActivityLimit = 5

// Server wires HTTP handlers to the job controller and stores.
type Server struct {
	router     chi.Router
	controller *scrape.Controller
	catalog    *sessions.Catalog
	registry   harvest.SessionStore
	history    harvest.HistoryStore
	generator  *generate.Service
	prober     *analyze.Prober
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The prober may
// be nil when the public probe is not configured.
func NewServer(
	controller *scrape.Controller,
	catalog *sessions.Catalog,
	registry harvest.SessionStore,
	history harvest.HistoryStore,
	generator *generate.Service,
	prober *analyze.Prober,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		controller: controller,
		catalog:    catalog,
		registry:   registry,
		history:    history,
		generator:  generator,
		prober:     prober,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/start", s.startScrape)
			r.Get("/status", s.scrapeStatus)
			r.Post("/otp", s.submitOTP)
			r.Post("/cancel", s.cancelScrape)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Get("/{timestamp}/posts", s.listSessionPosts)
		})
		r.Post("/generate", s.generateContent)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.listHistory)
			r.Delete("/{id}", s.deleteHistory)
		})
		r.Get("/stats", s.stats)
		r.Get("/analyze", s.analyzeTopic)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registry.CountPosts(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startScrape(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.Start(); err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) scrapeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

type otpRequest struct {
	Code string `json:"code"`
}

func (s *Server) submitOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing passcode")
		return
	}
	if err := s.controller.SubmitOTP(req.Code); err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
}

func (s *Server) cancelScrape(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Cancel(r.Context()); err != nil {
		writeError(w, statusFromError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListForSelection(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) listSessionPosts(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "timestamp")
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts < 0 {
		writeError(w, http.StatusBadRequest, "invalid session timestamp")
		return
	}
	posts, err := s.catalog.Posts(r.Context(), harvest.FilterFromWire(ts))
	if err != nil {
		if errors.Is(err, harvest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type generateRequest struct {
	Mode             string `json:"mode"`
	SessionTimestamp int64  `json:"session_timestamp"`
	Topic            string `json:"topic"`
	Tone             string `json:"tone"`
	ReferenceCaption string `json:"reference_caption"`
	// ReferenceImage is base64-encoded when present.
	ReferenceImage string `json:"reference_image"`
}

func (s *Server) generateContent(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	mode := harvest.GenerationMode(req.Mode)
	if mode != harvest.ModeTrend && mode != harvest.ModeRemix {
		writeError(w, http.StatusBadRequest, "mode must be \"trend\" or \"remix\"")
		return
	}
	var image []byte
	if req.ReferenceImage != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ReferenceImage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reference_image must be base64")
			return
		}
		image = decoded
	}

	result, err := s.generator.Generate(r.Context(), harvest.GenerationRequest{
		Mode:             mode,
		Session:          harvest.FilterFromWire(req.SessionTimestamp),
		Topic:            req.Topic,
		Tone:             req.Tone,
		ReferenceCaption: req.ReferenceCaption,
		ReferenceImage:   image,
	})
	if err != nil {
		if errors.Is(err, harvest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := s.history.ListEntries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.history.DeleteEntry(r.Context(), id); err != nil {
		if errors.Is(err, harvest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "history entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete history entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	totalScraped, err := s.registry.CountPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count posts")
		return
	}
	totalGenerated, err := s.history.CountEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count history")
		return
	}
	activity, err := s.recentActivity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build activity feed")
		return
	}
	writeJSON(w, http.StatusOK, harvest.Stats{
		TotalScraped:   totalScraped,
		TotalGenerated: totalGenerated,
		RecentActivity: activity,
	})
}

// recentActivity interleaves the latest harvests and generations into one
// newest-first feed.
func (s *Server) recentActivity(ctx context.Context) ([]harvest.Activity, error) {
	entries, err := s.history.ListEntries(ctx, recentActivityLimit)
	if err != nil {
		return nil, err
	}
	sessionList, err := s.registry.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(sessionList) > recentActivityLimit {
		sessionList = sessionList[:recentActivityLimit]
	}

	activity := make([]harvest.Activity, 0, len(entries)+len(sessionList))
	for _, e := range entries {
		activity = append(activity, harvest.Activity{
			Action:  "generated",
			Details: e.Topic,
			Time:    e.CreatedAt,
		})
	}
	for _, sess := range sessionList {
		activity = append(activity, harvest.Activity{
			Action:  "harvested",
			Details: sess.Label,
			Time:    time.Unix(sess.Timestamp, 0).UTC(),
		})
	}
	sort.Slice(activity, func(i, j int) bool {
		return activity[i].Time.After(activity[j].Time)
	})
	if len(activity) > recentActivityLimit {
		activity = activity[:recentActivityLimit]
	}
	return activity, nil
}

func (s *Server) analyzeTopic(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeError(w, http.StatusServiceUnavailable, "topic probe not configured")
		return
	}
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "missing topic")
		return
	}
	report, err := s.prober.Probe(r.Context(), topic)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, harvest.ErrAlreadyRunning),
		errors.Is(err, harvest.ErrNoChallenge),
		errors.Is(err, harvest.ErrNotRunning),
		errors.Is(err, harvest.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, harvest.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
