package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"f0oster/lineage/identity"
	"f0oster/lineage/logging"
	"f0oster/lineage/modules"
	"f0oster/lineage/relations"
	"f0oster/lineage/snapshot"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the operations the server exposes.
type Services struct {
	Modules   *modules.Service
	Snapshots *snapshot.Service
	Relations *relations.Service
}

// Server handles HTTP requests for the lineage API.
type Server struct {
	mux      *http.ServeMux
	addr     string
	services Services
	identity identity.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer creates a new web server instance.
func NewServer(addr string, services Services, resolver identity.Resolver, logger *zap.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		addr:     addr,
		services: services,
		identity: resolver,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// Main timeline
	s.mux.HandleFunc("GET /api/objects/{code}", s.handleResolveObject)
	s.mux.HandleFunc("GET /api/objects/{code}/history", s.handleLineageHistory)
	s.mux.HandleFunc("GET /api/objects/{code}/drafts", s.handleModuleDrafts)
	s.mux.HandleFunc("GET /api/snapshots/{type}", s.handleResolveSnapshot)

	// Module lifecycle
	s.mux.HandleFunc("GET /api/modules", s.handleListModules)
	s.mux.HandleFunc("POST /api/modules", s.withActor(s.handleCreateModule))
	s.mux.HandleFunc("GET /api/modules/{id}", s.handleModuleOverview)
	s.mux.HandleFunc("PATCH /api/modules/{id}", s.withActor(s.handleEditModule))
	s.mux.HandleFunc("POST /api/modules/{id}/activate", s.withActor(s.handleActivateModule))
	s.mux.HandleFunc("POST /api/modules/{id}/status", s.withActor(s.handlePatchStatus))
	s.mux.HandleFunc("POST /api/modules/{id}/close", s.withActor(s.handleCloseModule))
	s.mux.HandleFunc("POST /api/modules/{id}/complete", s.withActor(s.handleCompleteModule))

	// Module workspace
	s.mux.HandleFunc("POST /api/modules/{id}/objects", s.withActor(s.handleAddExistingObject))
	s.mux.HandleFunc("POST /api/modules/{id}/objects/new", s.withActor(s.handleAddNewObject))
	s.mux.HandleFunc("PATCH /api/modules/{id}/objects/{code}", s.withActor(s.handlePatchObject))
	s.mux.HandleFunc("DELETE /api/modules/{id}/objects/{code}", s.withActor(s.handleRemoveObject))
	s.mux.HandleFunc("PATCH /api/modules/{id}/objects/{code}/context", s.withActor(s.handleEditObjectContext))
	s.mux.HandleFunc("GET /api/modules/{id}/objects/{code}/diff", s.handleObjectDiff)
	s.mux.HandleFunc("GET /api/modules/{id}/objects/{code}/history", s.handleDraftHistory)

	// Acknowledged relations
	s.mux.HandleFunc("GET /api/objects/{code}/relations", s.handleListRelations)
	s.mux.HandleFunc("POST /api/objects/{code}/relations", s.withActor(s.handleRequestRelation))
	s.mux.HandleFunc("GET /api/objects/{code}/relations/{other}", s.handleGetRelation)
	s.mux.HandleFunc("PATCH /api/objects/{code}/relations/{other}", s.withActor(s.handleEditRelation))
	s.mux.HandleFunc("POST /api/objects/{code}/relations/{other}/approve", s.withActor(s.handleRelationOp(s.services.Relations.Approve)))
	s.mux.HandleFunc("POST /api/objects/{code}/relations/{other}/disapprove", s.withActor(s.handleRelationOp(s.services.Relations.Disapprove)))
	s.mux.HandleFunc("POST /api/objects/{code}/relations/{other}/deny", s.withActor(s.handleRelationOp(s.services.Relations.Deny)))
	s.mux.HandleFunc("DELETE /api/objects/{code}/relations/{other}", s.withActor(s.handleRelationOp(s.services.Relations.Delete)))

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Start listens until ctx is cancelled, then drains open requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}
