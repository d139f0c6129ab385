// Package api exposes the read-only HTTP interface for the podcast catalog.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/auth"
	"github.com/podhaven/crawler/internal/config"
	"github.com/podhaven/crawler/internal/metrics"
	"github.com/podhaven/crawler/internal/store"
)

const (
	defaultPodcastLimit = 100
	maxPodcastLimit     = 500
	episodePageLimit    = 20
)

// Server wires HTTP handlers to the catalog store.
type Server struct {
	router chi.Router
	db     store.Querier
	clock  auth.Clock
	cfg    config.Config
	log    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(db store.Querier, clock auth.Clock, cfg config.Config, log *zap.Logger) *Server {
	s := &Server{
		db:    db,
		clock: clock,
		cfg:   cfg,
		log:   log,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.bearerAuthMiddleware)
		}
		r.Get("/podcasts", s.listPodcasts)
		r.Get("/podcasts/{podcast_id}/episodes", s.listEpisodes)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Ready means the database answers.
	var one int
	if err := s.db.QueryRow(r.Context(), `SELECT 1`).Scan(&one); err != nil {
		writeError(s.log, w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]string{"status": "ready"})
}

type podcastResponse struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	LinkURL         *string   `json:"link_url,omitempty"`
	ImageURL        *string   `json:"image_url,omitempty"`
	Language        *string   `json:"language,omitempty"`
	LastRetrievedAt time.Time `json:"last_retrieved_at"`
}

const sqlListPodcasts = `
SELECT id, title, link_url, image_url, language, last_retrieved_at
FROM podcast
ORDER BY title
LIMIT $1`

func (s *Server) listPodcasts(w http.ResponseWriter, r *http.Request) {
	limit := defaultPodcastLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPodcastLimit {
			writeError(s.log, w, http.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxPodcastLimit))
			return
		}
		limit = n
	}

	rows, err := s.db.Query(r.Context(), sqlListPodcasts, limit)
	if err != nil {
		s.log.Error("listing podcasts failed", zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer rows.Close()

	podcasts := make([]podcastResponse, 0, limit)
	for rows.Next() {
		var p podcastResponse
		if err := rows.Scan(&p.ID, &p.Title, &p.LinkURL, &p.ImageURL, &p.Language, &p.LastRetrievedAt); err != nil {
			s.log.Error("scanning podcast row failed", zap.Error(err))
			writeError(s.log, w, http.StatusInternalServerError, "internal server error")
			return
		}
		podcasts = append(podcasts, p)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("listing podcasts failed", zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]any{"podcasts": podcasts})
}

type episodeResponse struct {
	ID          int64     `json:"id"`
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	MediaURL    string    `json:"media_url"`
	MediaType   *string   `json:"media_type,omitempty"`
	LinkURL     *string   `json:"link_url,omitempty"`
	Description *string   `json:"description,omitempty"`
	Explicit    *bool     `json:"explicit,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

const sqlListEpisodes = `
SELECT id, guid, title, media_url, media_type, link_url, description, explicit, published_at
FROM episode
WHERE podcast_id = $1
ORDER BY published_at DESC
LIMIT $2`

const sqlPodcastExists = `SELECT EXISTS (SELECT 1 FROM podcast WHERE id = $1)`

func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	podcastID, err := strconv.ParseInt(chi.URLParam(r, "podcast_id"), 10, 64)
	if err != nil {
		writeError(s.log, w, http.StatusBadRequest, "podcast_id must be an integer")
		return
	}

	var exists bool
	if err := s.db.QueryRow(r.Context(), sqlPodcastExists, podcastID).Scan(&exists); err != nil {
		s.log.Error("checking podcast failed", zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !exists {
		writeError(s.log, w, http.StatusNotFound, "podcast not found")
		return
	}

	rows, err := s.db.Query(r.Context(), sqlListEpisodes, podcastID, episodePageLimit)
	if err != nil {
		s.log.Error("listing episodes failed", zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, "internal server error")
		return
	}
	defer rows.Close()

	episodes := make([]episodeResponse, 0, episodePageLimit)
	for rows.Next() {
		var e episodeResponse
		if err := rows.Scan(&e.ID, &e.GUID, &e.Title, &e.MediaURL, &e.MediaType,
			&e.LinkURL, &e.Description, &e.Explicit, &e.PublishedAt); err != nil {
			s.log.Error("scanning episode row failed", zap.Error(err))
			writeError(s.log, w, http.StatusInternalServerError, "internal server error")
			return
		}
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		s.log.Error("listing episodes failed", zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]any{"episodes": episodes})
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
		s.log.Info("request completed",
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
				s.log.Error("panic recovered", zap.Any("panic", rec))
				writeError(s.log, w, http.StatusInternalServerError, "internal server error")
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

// bearerAuthMiddleware resolves the Authorization header to an account and
// records the access.
func (s *Server) bearerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || secret == "" {
			writeError(s.log, w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := auth.Authenticate(r.Context(), s.db, s.clock, secret); err != nil {
			if errors.Is(err, auth.ErrInvalidKey) {
				writeError(s.log, w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			s.log.Error("authentication failed", zap.Error(err))
			writeError(s.log, w, http.StatusInternalServerError, "internal server error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("response writer does not support hijacking")
}

func writeJSON(log *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("writing JSON response failed", zap.Error(err))
	}
}

func writeError(log *zap.Logger, w http.ResponseWriter, status int, message string) {
	writeJSON(log, w, status, map[string]string{"error": message})
}
