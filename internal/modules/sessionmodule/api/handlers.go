// Package api provides the HTTP and websocket endpoints of the session module.
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	apierrors "github.com/zynkhq/zynk/internal/errors"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/session"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/services"
)

const maxSessionListLimit = 500

// SessionFactory builds a controller for a new connection. It is called
// once per websocket, so each session gets the config snapshot current at
// connect time.
type SessionFactory func(requestedID string, notifier session.Notifier) *session.Controller

// Config wires the handler to its collaborators.
type Config struct {
	NewSession SessionFactory
	Registry   *session.Registry
	Storage    services.StorageService
	Segments   services.SegmentService
	Transport  TransportOptions
	Logger     hclog.Logger
}

// Handler handles HTTP requests for the session module
type Handler struct {
	ctx        context.Context
	newSession SessionFactory
	registry   *session.Registry
	storage    services.StorageService
	segments   services.SegmentService
	transport  TransportOptions
	upgrader   websocket.Upgrader
	logger     hclog.Logger

	conns sync.WaitGroup
}

// NewHandler creates the module's API handler. Sessions run under ctx;
// cancelling it aborts every live session.
func NewHandler(ctx context.Context, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	transport := cfg.Transport.withDefaults()

	return &Handler{
		ctx:        ctx,
		newSession: cfg.NewSession,
		registry:   cfg.Registry,
		storage:    cfg.Storage,
		segments:   cfg.Segments,
		transport:  transport,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     originChecker(transport.AllowedOrigins),
		},
		logger: logger,
	}
}

// Wait blocks until every websocket served by h has returned.
func (h *Handler) Wait() {
	h.conns.Wait()
}

// ListRecordings handles GET /api/v1/recordings?user_id=
// Returns the artifacts stored for one owner.
func (h *Handler) ListRecordings(c *gin.Context) {
	owner := c.Query("user_id")
	if owner == "" {
		apierrors.HandleValidationError(c, "user_id is required", "user_id")
		return
	}
	if h.storage == nil || !h.storage.Configured() {
		apierrors.NewUnavailableError("object storage", sErrors.ErrStorageNotConfigured).ToGinResponse(c)
		return
	}

	objects, err := h.storage.List(c.Request.Context(), owner)
	if err != nil {
		apierrors.NewUpstreamError("object storage", err).ToGinResponse(c)
		return
	}
	if objects == nil {
		objects = []services.ObjectInfo{}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    owner,
		"recordings": objects,
		"count":      len(objects),
	})
}

// ListSessions handles GET /api/v1/sessions?user_id=&limit=
// Returns recent session records, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	if h.segments == nil {
		apierrors.NewUnavailableError("session store", nil).ToGinResponse(c)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSessionListLimit {
			apierrors.HandleValidationError(c, "limit must be between 1 and 500", "limit")
			return
		}
		limit = n
	}

	records, err := h.segments.ListSessions(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		apierrors.HandleDatabaseError(c, "list_sessions", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": records,
		"count":    len(records),
	})
}

// GetSessionFeedback handles GET /api/v1/sessions/:id/feedback
// Returns the persisted feedback segments of a session in order.
func (h *Handler) GetSessionFeedback(c *gin.Context) {
	id, ok := apierrors.RequireParam(c, "id")
	if !ok {
		return
	}
	if h.segments == nil {
		apierrors.NewUnavailableError("session store", nil).ToGinResponse(c)
		return
	}

	segments, err := h.segments.ListBySession(c.Request.Context(), id)
	if err != nil {
		apierrors.HandleDatabaseError(c, "list_segments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"segments":   segments,
		"count":      len(segments),
	})
}

// ListActiveSessions handles GET /api/v1/active-sessions
func (h *Handler) ListActiveSessions(c *gin.Context) {
	ids := []string{}
	if h.registry != nil {
		ids = h.registry.IDs()
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": ids,
		"count":    len(ids),
	})
}
