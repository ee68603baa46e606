package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"securesend/internal/server/accesslog"
	"securesend/internal/server/database"
	"securesend/internal/server/service"
	"securesend/internal/server/session"
)

// Handler contains the HTTP handlers for the SecureSend API.
type Handler struct {
	gate      *service.GuestGate
	uploads   *service.UploadService
	downloads *service.DownloadService
	life      *service.Lifecycle
	users     *service.UserService
	sessions  *session.Codec
	db        *database.DB
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(
	gate *service.GuestGate,
	uploads *service.UploadService,
	downloads *service.DownloadService,
	life *service.Lifecycle,
	users *service.UserService,
	sessions *session.Codec,
	db *database.DB,
) *Handler {
	return &Handler{
		gate:      gate,
		uploads:   uploads,
		downloads: downloads,
		life:      life,
		users:     users,
		sessions:  sessions,
		db:        db,
	}
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Business-rule violations carry their human-readable reason; anything
// unexpected becomes a generic 500.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrExpired),
		errors.Is(err, service.ErrMaxFilesReached),
		errors.Is(err, service.ErrMaxTotalSizeExceeded),
		errors.Is(err, service.ErrDownloadLimitReached):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrAuthRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	case errors.Is(err, service.ErrAuthFailed):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication failed"})
	case errors.Is(err, service.ErrUnknownEmail),
		errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// audit returns the request's access-log entry placed by the collector
// middleware. A detached entry is returned if the middleware is absent, so
// handlers never have to nil-check.
func audit(c echo.Context) *accesslog.Entry {
	if e, ok := c.Get(accessEntryKey).(*accesslog.Entry); ok {
		return e
	}
	return accesslog.NewEntry(c.RealIP(), c.Request().UserAgent())
}

func fileJSON(f *database.File) echo.Map {
	return echo.Map{
		"file_id":       f.FileID,
		"original_name": f.OriginalName,
		"file_size":     f.FileSize,
		"uploaded_at":   f.UploadedAt,
	}
}
