package api

import (
	"cumulus/internal/server/config"
	"cumulus/internal/server/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, sessions *service.SessionService, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on the unauthenticated identity endpoints, which are the
	// ones worth brute-forcing.
	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Health
	e.GET("/health", handler.HandleHealth)

	// Identity (no session)
	e.POST("/api/signup", handler.HandleSignup, limiter.Middleware())
	e.POST("/api/signup/complete", handler.HandleCompleteSignup, limiter.Middleware())
	e.POST("/api/sessions", handler.HandleLogin, limiter.Middleware())
	e.POST("/api/password-reset", handler.HandleRequestPasswordReset, limiter.Middleware())
	e.POST("/api/password-reset/complete", handler.HandleCompletePasswordReset, limiter.Middleware())
	e.POST("/api/account/email/complete", handler.HandleCompleteEmailChange, limiter.Middleware())

	// Shared access (the key is the credential)
	e.GET("/s/:key", handler.HandleResolveShare)
	e.GET("/s/:key/files/:id", handler.HandleSharedDownload)

	// Everything below requires a session
	auth := e.Group("", SessionAuth(sessions))

	auth.DELETE("/api/sessions", handler.HandleLogout)
	auth.DELETE("/api/sessions/all", handler.HandleLogoutAll)

	auth.GET("/api/account", handler.HandleGetAccount)
	auth.POST("/api/account/password", handler.HandleChangePassword)
	auth.POST("/api/account/email", handler.HandleRequestEmailChange)
	auth.POST("/api/account/totp", handler.HandleEnrollTOTP)
	auth.POST("/api/account/totp/activate", handler.HandleActivateTOTP)
	auth.DELETE("/api/account/totp", handler.HandleRemoveTOTP)
	auth.DELETE("/api/account", handler.HandleDeleteAccount)

	auth.GET("/api/nodes", handler.HandleListNodes)
	auth.POST("/api/folders", handler.HandleCreateFolder)
	auth.GET("/api/folders/:id", handler.HandleGetFolder)
	auth.GET("/api/folders/:id/tree", handler.HandleListSubtree)
	auth.POST("/api/folders/:id/rename", handler.HandleRenameFolder)
	auth.POST("/api/folders/:id/move", handler.HandleMoveFolder)
	auth.DELETE("/api/folders/:id", handler.HandleDeleteFolder)
	auth.POST("/api/folders/:id/share", handler.HandleShareFolder)
	auth.DELETE("/api/folders/:id/share", handler.HandleUnshareFolder)

	auth.POST("/api/files", handler.HandleUpload)
	auth.GET("/api/files/:id", handler.HandleDownload)
	auth.POST("/api/files/:id/rename", handler.HandleRenameFile)
	auth.POST("/api/files/:id/move", handler.HandleMoveFile)
	auth.DELETE("/api/files/:id", handler.HandleDeleteFile)

	auth.POST("/api/repair-sizes", handler.HandleRepairSizes)

	return e
}
