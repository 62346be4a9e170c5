package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Studyhall/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Studyhall/internal/api/middlewares"
	"github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/logger"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, docs handlers.DocumentService) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, docs),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func newRouter(cfg *config.Config, docs handlers.DocumentService) http.Handler {
	docHandler := handlers.NewDocumentHandler(docs)
	searchHandler := handlers.NewSearchHandler(docs)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

		// synchronous ingestion can run for the whole ingest timeout
		api.Post("/documents/process", docHandler.ProcessDocument)

		api.Group(func(short chi.Router) {
			short.Use(middleware.Timeout(60 * time.Second))
			short.Post("/documents/upload", docHandler.UploadDocument)
			short.Get("/documents", docHandler.GetDocuments)
			short.Get("/documents/{id}", docHandler.GetDocument)
			short.Delete("/documents/{id}", docHandler.DeleteDocument)
			short.Post("/search", searchHandler.Search)
		})
	})
	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	logger.Infof("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
