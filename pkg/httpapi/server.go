// Package httpapi exposes the memory engine over a REST surface.
//
// It is a thin adapter: every handler validates its input, calls the engine,
// and maps the engine's error kinds onto HTTP status codes. The line protocol
// remains the primary transport; the HTTP surface exists for clients that
// cannot speak stdio.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/duomem/duomem-go/pkg/core"
)

// Server serves the REST API for a memory engine.
type Server struct {
	engine   *core.Engine
	logger   *zap.Logger
	validate *validator.Validate
	srv      *http.Server
}

// NewServer creates an HTTP server bound to addr.
func NewServer(engine *core.Engine, addr string, logger *zap.Logger) *Server {
	s := &Server{
		engine:   engine,
		logger:   logger,
		validate: validator.New(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/memories", func(r chi.Router) {
		r.Post("/", s.handleIngest)
		r.Post("/search", s.handleSearch)
		r.Get("/", s.handleGetAll)
		r.Delete("/", s.handleDeleteAll)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	r.Get("/relations", s.handleRelations)

	return r
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// requestLogger logs one line per completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
