package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avvvet/council-intake/internal/catalog"
	"github.com/avvvet/council-intake/internal/memory"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SessionView is the audit view of one stored session.
type SessionView struct {
	Session    *models.DialogueSession `json:"session"`
	Transcript string                  `json:"transcript"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPTransport exposes turns as a JSON webhook plus read-only audit,
// catalog, health and metrics endpoints.
type HTTPTransport struct {
	handler     TurnProcessor
	store       memory.Store
	catalog     *catalog.Catalog
	checks      []HealthCheck
	turnTimeout time.Duration
	logger      *slog.Logger
	router      *gin.Engine
}

func NewHTTPTransport(handler TurnProcessor, store memory.Store, cat *catalog.Catalog, turnTimeout time.Duration, logger *slog.Logger, checks ...HealthCheck) *HTTPTransport {
	t := &HTTPTransport{
		handler:     handler,
		store:       store,
		catalog:     cat,
		checks:      checks,
		turnTimeout: turnTimeout,
		logger:      logger,
	}

	router := gin.New()
	router.Use(gin.Recovery(), t.requestLogger())

	router.GET("/healthz", t.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/turns", t.handleTurn)
	v1.GET("/sessions/:id", t.handleGetSession)
	v1.GET("/services", t.handleListServices)

	t.router = router
	return t
}

// Handler returns the routed engine.
func (t *HTTPTransport) Handler() http.Handler {
	return t.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (t *HTTPTransport) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           t.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      t.turnTimeout + 10*time.Second, // Long for LLM responses
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server gracefully: %w", err)
	}
	t.logger.Info("HTTP server stopped")
	return nil
}

func (t *HTTPTransport) handleTurn(c *gin.Context) {
	var request models.TurnRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(request.SessionID, models.ErrorInvalidRequest, "Invalid request format"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), t.turnTimeout)
	defer cancel()

	response, err := t.handler.ProcessTurn(ctx, &request)
	if err != nil {
		t.logger.Error("error processing turn", "session_id", request.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse(request.SessionID, models.ErrorInternal, err.Error()))
		return
	}

	status := http.StatusOK
	if response.ErrorCode != nil && *response.ErrorCode == models.ErrorInvalidRequest {
		status = http.StatusBadRequest
	}
	c.JSON(status, response)
}

func (t *HTTPTransport) handleGetSession(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	session, err := t.store.Get(ctx, sessionID)
	if errors.Is(err, memory.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody{Error: "session not found", Code: "SESSION_NOT_FOUND"})
		return
	}
	if err != nil {
		t.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "session store unavailable", Code: models.ErrorStoreFailed})
		return
	}

	transcript, err := memory.FormatTranscript(ctx, session.History)
	if err != nil {
		t.logger.Error("failed to format transcript", "session_id", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "failed to format transcript", Code: models.ErrorInternal})
		return
	}

	c.JSON(http.StatusOK, SessionView{Session: session, Transcript: transcript})
}

func (t *HTTPTransport) handleListServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": t.catalog.List()})
}

func (t *HTTPTransport) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(t.checks))
	for _, check := range t.checks {
		if err := check.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			continue
		}
		results[check.Name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}

func (t *HTTPTransport) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		t.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started))
	}
}
