package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"securesend/internal/server/accesslog"
	"securesend/internal/server/config"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, recorder *accesslog.Recorder, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware. The audit collector sits outermost so even a
	// recovered panic flushes its entry.
	e.Use(AccessLogCollector(recorder))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.BaseURL},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))
	e.Use(RequestLogger())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes, 10)))

	// Rate limiter on the guest-facing endpoints only
	guestLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health
	e.GET("/health", handler.HandleHealth)

	// Guest (token-bearing, rate-limited)
	guest := e.Group("/api/guest", guestLimiter.Middleware())
	guest.GET("/:token", handler.HandleGuestShow)
	guest.POST("/:token/auth", handler.HandleGuestAuth)
	guest.POST("/:token/files", handler.HandleGuestUpload)
	guest.GET("/:token/files/:file_id", handler.HandleGuestDownload)
	guest.GET("/:token/archive", handler.HandleGuestArchive)

	// Internal users
	e.POST("/api/login", handler.HandleLogin)
	e.POST("/api/logout", handler.HandleLogout)

	internal := e.Group("/api", handler.RequireInternal())
	internal.POST("/upload_requests", handler.HandleCreateUploadRequest)
	internal.GET("/upload_requests", handler.HandleListUploadRequests)
	internal.GET("/upload_requests/:id", handler.HandleGetUploadRequest)
	internal.DELETE("/upload_requests/:id", handler.HandleDeleteUploadRequest)
	internal.POST("/upload_requests/:id/files", handler.HandleInternalUpload)
	internal.POST("/upload_requests/:id/download_requests", handler.HandleCreateDownloadRequest)
	internal.GET("/upload_requests/:id/access_logs", handler.HandleListAccessLogs)
	internal.GET("/files/:file_id", handler.HandleInternalDownload)
	internal.DELETE("/files/:file_id", handler.HandleDeleteFile)
	internal.DELETE("/download_requests/:id", handler.HandleDeleteDownloadRequest)

	// User management (admin only)
	admin := internal.Group("/users", handler.RequireAdmin())
	admin.GET("", handler.HandleListUsers)
	admin.POST("", handler.HandleSaveUser)
	admin.DELETE("/:id", handler.HandleDeleteUser)

	return e
}
