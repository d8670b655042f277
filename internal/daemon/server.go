package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"docsync/internal/logger"
	"docsync/internal/model"
	"docsync/internal/orchestrator"
	"docsync/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Engine is the part of the orchestrator the daemon exposes.
type Engine interface {
	Status() orchestrator.Status
	History(n int) []model.SyncRecord
	Audit() (model.AuditReport, error)
	SyncAll(ctx context.Context, opts orchestrator.Options) (*orchestrator.Summary, error)
}

// HistorySource serves history from the database when it is available.
type HistorySource interface {
	GetRecent(limit int) ([]model.History, error)
	GetFailed() ([]model.History, error)
	GetRun(runID string) ([]model.History, error)
	GetStats() (repository.Stats, error)
}

type Server struct {
	echo    *echo.Echo
	engine  Engine
	history HistorySource
	port    int
	stopCh  chan struct{}
}

func NewServer(engine Engine, history HistorySource, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		engine:  engine,
		history: history,
		port:    port,
		stopCh:  make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.GET("/history", s.handleHistory)
	s.echo.GET("/history/stats", s.handleStats)
	s.echo.GET("/audit", s.handleAudit)
	s.echo.POST("/sync", s.handleSync)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil && parsed > 0 {
			n = parsed
		}
	}
	failed := c.QueryParam("failed") == "true"
	runID := c.QueryParam("run")

	if s.history != nil {
		var (
			histories []model.History
			err       error
		)
		switch {
		case runID != "":
			histories, err = s.history.GetRun(runID)
		case failed:
			histories, err = s.history.GetFailed()
		default:
			histories, err = s.history.GetRecent(n)
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		if len(histories) > n {
			histories = histories[:n]
		}
		return c.JSON(http.StatusOK, histories)
	}

	recs := s.engine.History(0)
	histories := make([]model.History, 0, n)
	for i := len(recs) - 1; i >= 0 && len(histories) < n; i-- {
		rec := recs[i]
		if runID != "" && rec.RunID != runID {
			continue
		}
		if failed && rec.Success {
			continue
		}
		histories = append(histories, model.HistoryFromRecord(rec))
	}
	return c.JSON(http.StatusOK, histories)
}

func (s *Server) handleStats(c echo.Context) error {
	if s.history != nil {
		stats, err := s.history.GetStats()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, stats)
	}

	var stats repository.Stats
	for _, rec := range s.engine.History(0) {
		stats.Total++
		if rec.Success {
			stats.Success++
		}
	}
	stats.Failed = stats.Total - stats.Success
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAudit(c echo.Context) error {
	report, err := s.engine.Audit()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

type syncRequest struct {
	DryRun bool     `json:"dry_run"`
	Force  bool     `json:"force"`
	Modes  []string `json:"modes"`
}

func (s *Server) handleSync(c echo.Context) error {
	var req syncRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}

	opts := orchestrator.Options{DryRun: req.DryRun, Force: req.Force}
	for _, m := range req.Modes {
		t, err := model.ParseEntityType(m)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		opts.Types = append(opts.Types, t)
	}

	sum, err := s.engine.SyncAll(c.Request().Context(), opts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	status := http.StatusOK
	if sum.HasFailures() {
		status = http.StatusMultiStatus
		logger.Log.Warn("sync request finished with failures",
			zap.String("run", sum.RunID),
			zap.Error(sum.Err))
	}
	return c.JSON(status, sum)
}
