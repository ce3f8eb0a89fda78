// Package httpapi provides the HTTP API for blacksmith.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stack-auth/blacksmith/internal/review"
	"github.com/stack-auth/blacksmith/internal/update"
	"github.com/stack-auth/blacksmith/internal/workspace"
)

// Updater is the orchestrator surface the API needs.
type Updater interface {
	StartUpdate(ctx context.Context) (update.RunInfo, error)
	Progress() update.Progress
}

// Reviewer is the checkpoint store surface the API needs.
type Reviewer interface {
	Approve(ctx context.Context, targetID, message string) (review.CommitResult, error)
	Reject(ctx context.Context, targetID string) (review.RevertResult, error)
	SaveFile(ctx context.Context, id, relPath, content string) error
	Status(ctx context.Context, targetID string) (workspace.StagedStatus, error)
	ListTargets(ctx context.Context) ([]review.TargetStatus, error)
}

// Server provides HTTP endpoints for blacksmith.
type Server struct {
	echo     *echo.Echo
	updater  Updater
	reviewer Reviewer
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(updater Updater, reviewer Reviewer, logger *zap.Logger, cfg *Config) (*Server, error) {
	if updater == nil {
		return nil, fmt.Errorf("updater cannot be nil")
	}
	if reviewer == nil {
		return nil, fmt.Errorf("reviewer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8788,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			observeRequest(c.Request().Method, c.Path(), c.Response().Status, duration)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		updater:  updater,
		reviewer: reviewer,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/update", s.handleStartUpdate)
	v1.GET("/progress", s.handleProgress)
	v1.GET("/targets", s.handleListTargets)
	v1.GET("/targets/:id/status", s.handleStatus)
	v1.POST("/targets/:id/approve", s.handleApprove)
	v1.POST("/targets/:id/reject", s.handleReject)
	v1.POST("/targets/:id/files", s.handleSaveFile)
	v1.POST("/english/files", s.handleSaveSpecFile)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// StartUpdateResponse acknowledges an accepted update request.
type StartUpdateResponse struct {
	Accepted  bool      `json:"accepted"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// handleStartUpdate triggers a regeneration run. It always answers 202: the
// run continues asynchronously and its real outcome is observed via
// /progress.
func (s *Server) handleStartUpdate(c echo.Context) error {
	info, err := s.updater.StartUpdate(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to start update", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start update")
	}
	return c.JSON(http.StatusAccepted, StartUpdateResponse{
		Accepted:  true,
		RunID:     info.RunID,
		StartedAt: info.StartedAt,
	})
}

// handleProgress returns the progress snapshot of the current or most
// recent run.
func (s *Server) handleProgress(c echo.Context) error {
	return c.JSON(http.StatusOK, s.updater.Progress())
}

// ApproveRequest is the request body for POST /api/v1/targets/:id/approve.
type ApproveRequest struct {
	Message string `json:"message"`
}

// handleApprove commits the staged changes of one target.
func (s *Server) handleApprove(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.reviewer.Approve(c.Request().Context(), c.Param("id"), req.Message)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// handleReject reverts the staged changes of one target.
func (s *Server) handleReject(c echo.Context) error {
	result, err := s.reviewer.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// SaveFileRequest is the request body for the file save endpoints.
type SaveFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SaveFileResponse is the response body for the file save endpoints.
type SaveFileResponse struct {
	Saved bool `json:"saved"`
}

// handleSaveFile writes and stages a file in a target workspace.
func (s *Server) handleSaveFile(c echo.Context) error {
	return s.saveFile(c, c.Param("id"))
}

// handleSaveSpecFile writes and stages a file in the specification
// workspace.
func (s *Server) handleSaveSpecFile(c echo.Context) error {
	return s.saveFile(c, workspace.EnglishID)
}

func (s *Server) saveFile(c echo.Context, id string) error {
	var req SaveFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path field is required")
	}

	if err := s.reviewer.SaveFile(c.Request().Context(), id, req.Path, req.Content); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, SaveFileResponse{Saved: true})
}

// handleStatus returns the staged status of one target.
func (s *Server) handleStatus(c echo.Context) error {
	status, err := s.reviewer.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// ListTargetsResponse is the response body for GET /api/v1/targets.
type ListTargetsResponse struct {
	Targets []review.TargetStatus `json:"targets"`
}

// handleListTargets lists every configured target in declaration order.
func (s *Server) handleListTargets(c echo.Context) error {
	targets, err := s.reviewer.ListTargets(c.Request().Context())
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, ListTargetsResponse{Targets: targets})
}

// mapError translates service errors into HTTP errors. Validation failures
// are reported synchronously and never have side effects.
func (s *Server) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, workspace.ErrUnknownTarget):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, workspace.ErrPathEscapesWorkspace):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, review.ErrWorkspaceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
