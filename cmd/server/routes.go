package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codecollab/backend/internal/middleware"
	"github.com/huangang/codecollab/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine. It returns
// the rate limiters so their cleanup loops can be stopped on shutdown.
func registerRoutes(r *gin.Engine, svc *appServices) []*middleware.RateLimiter {
	// Middleware
	r.Use(logger.GinLogger("/health"), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Realtime.AllowedOrigins))

	// Rate limiters for credential and AI routes
	authLimiter := middleware.NewRateLimiter(5, 10)
	aiLimiter := middleware.NewRateLimiter(1, 5)

	// Health check
	r.GET("/health", svc.healthHandler.CheckHealth)

	// Real-time collaboration (handshake validated inside the handler)
	r.GET("/ws", svc.collabHandler.ServeWS)

	authRequired := middleware.AuthRequired(svc.authService)

	users := r.Group("/users")
	{
		users.POST("/register", authLimiter.Middleware(), svc.userHandler.Register)
		users.POST("/login", authLimiter.Middleware(), svc.userHandler.Login)
		users.GET("/auth-config", svc.userHandler.AuthConfig)

		users.GET("/logout", authRequired, svc.userHandler.Logout)
		users.GET("/profile", authRequired, svc.userHandler.Profile)
		users.GET("/all", authRequired, svc.userHandler.All)
		users.GET("/me", authRequired, svc.userHandler.Me)
	}

	projects := r.Group("/projects", authRequired)
	{
		projects.POST("/create", svc.projectHandler.Create)
		projects.GET("/all", svc.projectHandler.All)
		projects.GET("/get-project/:projectId", svc.projectHandler.Get)
		projects.PUT("/add-user", svc.projectHandler.AddUsers)
		projects.PUT("/update-file-tree", svc.projectHandler.UpdateFileTree)
		projects.POST("/save-message", svc.projectHandler.SaveMessage)
		projects.DELETE("/:projectId", svc.projectHandler.Delete)
	}

	ai := r.Group("/ai", aiLimiter.Middleware())
	{
		ai.GET("/get-result", svc.aiHandler.GetResult)
	}

	if dir := svc.cfg.Server.StaticDir; dir != "" {
		serveStatic(r, dir)
	}

	return []*middleware.RateLimiter{authLimiter, aiLimiter}
}

// serveStatic serves a built single page app from dir, falling back to
// index.html for client side routes.
func serveStatic(r *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("Static directory has no index.html, not serving it")
		return
	}

	r.GET("/", func(c *gin.Context) {
		c.File(index)
	})
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "not found"})
			return
		}

		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))
		if strings.HasPrefix(path, filepath.Clean(dir)) {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				c.File(path)
				return
			}
		}
		// Fallback to index.html for SPA routing
		c.File(index)
	})
}
