// Package server exposes template management, generation and signing over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/generate"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
)

// maxUpload bounds template, render and signature uploads.
const maxUpload = 32 << 20

// Server is the HTTP adapter over the generation service and the signature workflow.
type Server struct {
	generator *generate.Service
	workflow  *signing.Workflow
	storage   storage.Storage
	blobs     blob.Store
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	generator *generate.Service,
	workflow *signing.Workflow,
	storage storage.Storage,
	blobs blob.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		generator: generator,
		workflow:  workflow,
		storage:   storage,
		blobs:     blobs,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleImportTemplate)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Put("/templates/{id}/settings", s.handleConfigureTemplate)
		r.Post("/templates/{id}/activate", s.handleActivate)
		r.Post("/templates/{id}/archive", s.handleArchive)
		r.Post("/templates/{id}/validate", s.handleValidate)
		r.Post("/templates/{id}/documents", s.handleGenerate)

		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/artifacts/{kind}", s.handleArtifact)
		r.Post("/documents/{id}/sign", s.handleSign)
		r.Post("/documents/{id}/cancel", s.handleCancel)
		r.Post("/documents/{id}/render", s.handleRender)
		r.Post("/documents/{id}/stamp", s.handleStamp)

		r.Put("/signers/{id}/signature", s.handleRegisterSignature)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
