package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fairhouse/engine/internal/round"
	"github.com/fairhouse/engine/internal/store"
)

// Server handles HTTP requests for the resolution engine.
type Server struct {
	controller *round.Controller
	db         store.DB
	logger     *zap.Logger
	jwtSecret  []byte
}

// NewServer wires the API surface around a round controller.
func NewServer(controller *round.Controller, db store.DB, logger *zap.Logger, jwtSecret []byte) *Server {
	return &Server{
		controller: controller,
		db:         db,
		logger:     logger,
		jwtSecret:  jwtSecret,
	}
}

// Routes sets up the HTTP routes with proper middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/dice", s.handleDice)
			r.Post("/crash", s.handleCrash)
			r.Post("/mines", s.handleMines)
			r.Post("/plinko", s.handlePlinko)
			r.Get("/sessions/{id}", s.handleGetSession)
		})
	})

	return r
}

// loggingMiddleware logs every request without exposing seeds or tokens.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Int("bytesWritten", ww.BytesWritten()),
		)
	})
}

// writeJSON writes a JSON response with proper headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		EngineVersion: EngineVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
