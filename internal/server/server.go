// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voltassist/internal/domain"
	"voltassist/internal/service"
)

// Assistant is the subset of the assistant service served over HTTP.
type Assistant interface {
	AnswerQuery(ctx context.Context, text, category, language string) (*service.Answer, error)
	Categories() []string
}

type Config struct {
	Addr           string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type Server struct {
	cfg       Config
	assistant Assistant
	logger    *zap.Logger
	http      *http.Server
}

func New(cfg Config, assistant Assistant, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "https://*"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, assistant: assistant, logger: logger}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes configures the router and middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Post("/answer", s.handleAnswer)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}

type answerRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
	Category string `json:"category" validate:"omitempty,max=100"`
	Language string `json:"language" validate:"omitempty,max=40"`
}

type answerResponse struct {
	ID string `json:"id"`
	*service.Answer
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	_ = writeOK(w, s.assistant.Categories())
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		_ = writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error(), nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		_ = writeError(w, http.StatusBadRequest, "validation_failed", "request validation failed", validationDetails(err))
		return
	}

	turnID := uuid.NewString()
	logger := s.logger.With(zap.String("turn_id", turnID), zap.String("request_id", middleware.GetReqID(r.Context())))
	ans, err := s.assistant.AnswerQuery(r.Context(), req.Question, req.Category, req.Language)
	if err != nil {
		status, code := statusFor(err)
		logger.Warn("answer failed", zap.Int("status", status), zap.Error(err))
		_ = writeError(w, status, code, err.Error(), nil)
		return
	}
	logger.Debug("answer served", zap.Int("matches", len(ans.Matches)))
	_ = writeOK(w, answerResponse{ID: turnID, Answer: ans})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable, "embedding_unavailable"
	case errors.Is(err, domain.ErrGenerationUnavailable):
		return http.StatusBadGateway, "generation_unavailable"
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable, "retrieval_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
