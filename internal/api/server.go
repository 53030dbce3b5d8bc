package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"imagyn/app"
	"imagyn/domain/core"
	"imagyn/domain/generation"
)

// GenerationService is the application surface exposed over HTTP.
type GenerationService interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Record, error)
	Edit(ctx context.Context, req generation.EditRequest) (*generation.Record, error)
	ListAdapters(ctx context.Context) ([]generation.AdapterDescriptor, error)
	Lookup(ctx context.Context, id core.ArtifactID, includeInline bool) (*generation.Record, error)
	History(ctx context.Context, limit int) ([]generation.Record, error)
	Delete(ctx context.Context, id core.ArtifactID) error
	Status(ctx context.Context) (*app.ServerStatus, error)
}

var _ GenerationService = (*app.GenerationService)(nil)

// Server is the HTTP API.
type Server struct {
	router  *gin.Engine
	service GenerationService
	logger  *zap.Logger

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a server with middleware and routes installed.
func NewServer(service GenerationService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  gin.New(),
		service: service,
		logger:  logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(Recovery(s.logger))
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		images := api.Group("/images")
		images.POST("", s.handleGenerate)
		images.GET("", s.handleHistory)
		images.GET("/:id", s.handleGetImage)
		images.GET("/:id/content", s.handleGetImageContent)
		images.POST("/:id/edit", s.handleEdit)
		images.DELETE("/:id", s.handleDelete)

		api.GET("/adapters", s.handleListAdapters)
		api.GET("/status", s.handleStatus)
	}
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("HTTP API listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
