// Package httpapi exposes the job definitions and the live schedule state
// over a small JSON API. Mutations go to the store only; the poller picks the
// change up on its next pass, or POST /api/refresh applies it immediately.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dyncron/internal/cronjob"
	"dyncron/internal/registry"
	"dyncron/internal/shared"
)

// Registry is the schedule-side surface the API needs.
type Registry interface {
	Refresh(ctx context.Context)
	Status() map[string]bool
}

// Server wires the admin routes onto a gin engine.
type Server struct {
	store    cronjob.Store
	registry Registry
	log      *slog.Logger
}

// New creates a Server.
func New(store cronjob.Store, reg Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, registry: reg, log: log.With("component", "httpapi")}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/active", s.listActiveJobs)
	api.GET("/jobs/:name", s.getJob)
	api.POST("/jobs", s.createJob)
	api.PATCH("/jobs/:name", s.updateJob)
	api.DELETE("/jobs/:name", s.deleteJob)
	api.GET("/schedules", s.schedules)
	api.POST("/refresh", s.refresh)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listJobs(c *gin.Context) {
	defs, err := s.store.ListAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (s *Server) listActiveJobs(c *gin.Context) {
	defs, err := s.store.ListActive(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (s *Server) getJob(c *gin.Context) {
	def, err := s.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

type createJobRequest struct {
	Name        string `json:"name" binding:"required"`
	Spec        string `json:"spec" binding:"required"`
	Description string `json:"description"`
	Handler     string `json:"handler"`
	Active      *bool  `json:"active"`
}

func (s *Server) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := registry.ValidateSpec(req.Spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	def := cronjob.Definition{
		Name:        req.Name,
		Spec:        req.Spec,
		Description: req.Description,
		Handler:     req.Handler,
		Active:      true,
	}
	if req.Active != nil {
		def.Active = *req.Active
	}

	if err := s.store.Create(c.Request.Context(), def); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

type updateJobRequest struct {
	Spec        *string `json:"spec"`
	Description *string `json:"description"`
	Handler     *string `json:"handler"`
	Active      *bool   `json:"active"`
}

func (s *Server) updateJob(c *gin.Context) {
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	def, err := s.store.Get(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}

	if req.Spec != nil {
		if err := registry.ValidateSpec(*req.Spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		def.Spec = *req.Spec
	}
	if req.Description != nil {
		def.Description = *req.Description
	}
	if req.Handler != nil {
		def.Handler = *req.Handler
	}
	if req.Active != nil {
		def.Active = *req.Active
	}

	if err := s.store.Update(ctx, def); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) deleteJob(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) schedules(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Status())
}

func (s *Server) refresh(c *gin.Context) {
	s.registry.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, s.registry.Status())
}

// fail maps a domain error onto an HTTP status via its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		status = http.StatusNotFound
	case shared.KindValidation:
		status = http.StatusBadRequest
	case shared.KindConflict:
		status = http.StatusConflict
	case shared.KindTimeout, shared.KindCanceled:
		status = http.StatusGatewayTimeout
	case shared.KindDependencyFailure:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
