// Package http exposes the progress commands and queries as a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ivrit-hub/progress-hub/internal/application/command"
	"github.com/ivrit-hub/progress-hub/internal/application/query"
	"github.com/ivrit-hub/progress-hub/internal/interface/http/handlers"
	"github.com/ivrit-hub/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// BodyLimit caps request bodies, e.g. "1M".
	BodyLimit string

	// Debug returns raw error text to clients.
	Debug bool

	// DisableRequestLogs turns off per-request log lines.
	DisableRequestLogs bool

	// Version is reported by /healthz.
	Version string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    "1M",
		Version:      "v1",
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RequestObserver records finished requests. *metrics.Metrics implements it.
type RequestObserver interface {
	RequestStarted() func()
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// Dependencies holds the application handlers served by the API.
// Health, Metrics, MetricsHandler and Clock are optional.
type Dependencies struct {
	OpenProgress        *command.OpenProgressHandler
	RecordDailyActivity *command.RecordDailyActivityHandler
	CompleteStory       *command.CompleteStoryHandler
	SubmitPractice      *command.SubmitPracticeHandler
	CreateGoal          *command.CreateGoalHandler
	UpdateGoalProgress  *command.UpdateGoalProgressHandler

	GetOverview       *query.GetOverviewHandler
	GetPracticeTrends *query.GetPracticeTrendsHandler
	ListAchievements  *query.ListAchievementsHandler
	ListGoals         *query.ListGoalsHandler

	Health         handlers.HealthChecker
	Metrics        RequestObserver
	MetricsHandler http.Handler

	Clock  timeutil.Clock
	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the HTTP API server.
type Server struct {
	config    Config
	deps      Dependencies
	app       *echo.Echo
	logger    *slog.Logger
	running   atomic.Bool
	startTime time.Time
}

// NewServer creates the server and registers all routes.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewNoopHealthChecker()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.NewSystemClock(nil)
	}

	s := &Server{
		config:    config,
		deps:      deps,
		app:       echo.New(),
		logger:    deps.Logger.With("component", "http"),
		startTime: time.Now(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = s.config.Debug
	v := newRequestValidator()
	s.app.Validator = v
	s.app.HTTPErrorHandler = newErrorHandler(v, s.logger)

	s.app.Server.ReadTimeout = s.config.ReadTimeout
	s.app.Server.WriteTimeout = s.config.WriteTimeout
	s.app.Server.IdleTimeout = s.config.IdleTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if s.deps.Metrics != nil {
		s.app.Use(s.metricsMiddleware)
	}
	if !s.config.DisableRequestLogs {
		s.app.Use(s.loggingMiddleware)
	}
	s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.logger.Error("panic recovered", "path", c.Path(), "error", err, "stack", string(stack))
			return err
		},
	}))
	if s.config.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(s.config.BodyLimit))
	}

	s.app.GET("/healthz", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.deps.MetricsHandler))
	}

	users := s.app.Group("/api/v1/users/:userID")

	users.POST("/progress", s.handleOpenProgress)
	users.GET("/progress", s.handleGetOverview)
	users.POST("/activity/ping", s.handleRecordActivity)

	users.POST("/stories/:storyID/complete", s.handleCompleteStory)
	users.POST("/practice", s.handleSubmitPractice)
	users.GET("/practice/trends", s.handleGetPracticeTrends)

	users.GET("/achievements", s.handleListAchievements)

	users.POST("/goals", s.handleCreateGoal)
	users.GET("/goals", s.handleListGoals)
	users.PATCH("/goals/:goalID/progress", s.handleUpdateGoalProgress)
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		done := s.deps.Metrics.RequestStarted()
		defer done()

		start := time.Now()
		err := next(c)
		if err != nil {
			// Let the error handler write the response so the status is final.
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveRequest(c.Request().Method, route, c.Response().Status, time.Since(start))
		return nil
	}
}

func (s *Server) loggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req := c.Request()
		s.logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"route", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}
	s.startTime = time.Now()
	s.logger.Info("http server starting", "address", s.config.Address())

	if err := s.app.Start(s.config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.running.Store(false)
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine and returns a channel that
// receives the terminal error, if any.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.Load() {
		return nil
	}
	s.logger.Info("http server shutting down")
	defer s.running.Store(false)
	return s.app.Shutdown(ctx)
}

// IsRunning reports whether Start is active.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Uptime returns the time since the server started.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Cached    bool      `json:"cached,omitempty"`
}

func newMeta(c echo.Context) *ResponseMeta {
	return &ResponseMeta{
		Timestamp: time.Now().UTC(),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	}
}

func writeData(c echo.Context, status int, data any) error {
	return c.JSON(status, JSONResponse{Success: true, Data: data, Meta: newMeta(c)})
}

func writeCached(c echo.Context, data any, cached bool) error {
	meta := newMeta(c)
	meta.Cached = cached
	return c.JSON(http.StatusOK, JSONResponse{Success: true, Data: data, Meta: meta})
}
