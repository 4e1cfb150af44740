package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vk/flowgrid/internal/app"
	"github.com/vk/flowgrid/internal/ctxlog"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	App *app.App
}

// NewServer creates a Server for a.
func NewServer(a *app.App) *Server {
	return &Server{App: a}
}

// Handler builds the echo instance with middleware and every route.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	logger := s.App.Logger()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "HTTP request.",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(ctxlog.WithLogger(req.Context(), logger)))
			return next(c)
		}
	})

	e.GET("/health", s.Health)
	RegisterHandlers(e.Group("/api/v1"), s)
	return e
}

// RegisterHandlers mounts the API routes on g.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/node-types", s.ListNodeTypes)

	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)
	g.PUT("/workflows/:id/variables", s.SetVariables)
	g.PUT("/workflows/:id/enabled", s.SetEnabled)
	g.GET("/workflows/:id/validate", s.ValidateWorkflow)

	g.POST("/workflows/:id/nodes", s.AddNode)
	g.PATCH("/workflows/:id/nodes/:node", s.UpdateNode)
	g.DELETE("/workflows/:id/nodes/:node", s.DeleteNode)
	g.POST("/workflows/:id/connections", s.Connect)
	g.DELETE("/workflows/:id/connections/:conn", s.Disconnect)

	g.POST("/workflows/:id/runs", s.StartRun)
	g.GET("/runs", s.ListActiveRuns)
	g.GET("/runs/:run", s.GetRun)
	g.GET("/runs/:run/log", s.GetRunLog)
	g.POST("/runs/:run/stop", s.StopRun)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	logger := ctxlog.FromContext(ctx)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("🌐 HTTP server starting", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	logger.Info("🌐 Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	logger.Debug("HTTP server shut down gracefully.")
	return nil
}
