package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/filecollab/filecollab/auth"
	"github.com/filecollab/filecollab/internal/slogging"
)

// Server wires the HTTP surface together: REST handlers, the websocket hub,
// and the metrics endpoint.
type Server struct {
	Auth  *auth.Service
	Users *UserHandler
	Files *FileHandler
	Hub   *WebSocketHub

	corsOrigin string
	registry   *prometheus.Registry
}

// NewServer assembles a server from its parts. corsOrigin is the frontend
// origin allowed to call the API; empty means any.
func NewServer(authSvc *auth.Service, users *UserHandler, files *FileHandler, hub *WebSocketHub, corsOrigin string, registry *prometheus.Registry) *Server {
	return &Server{
		Auth:       authSvc,
		Users:      users,
		Files:      files,
		Hub:        hub,
		corsOrigin: corsOrigin,
		registry:   registry,
	}
}

// RegisterRoutes attaches every endpoint to the router
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.Use(requestLogger(), corsMiddleware(s.corsOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	// Unauthenticated surface
	v1.POST("/users/signup", s.Users.Signup)
	v1.POST("/login/access-token", s.Users.Login)
	v1.GET("/public/files/:file_id", s.Files.GetShared)

	// The websocket handshake authenticates via its token query parameter,
	// not the Authorization header
	v1.GET("/ws/:file_id", s.Hub.HandleWS)

	authed := v1.Group("")
	authed.Use(auth.Middleware(s.Auth))

	authed.GET("/users/me", s.Users.Me)
	authed.GET("/users/:user_id", s.Users.GetUser)

	authed.POST("/files/upload", s.Files.Upload)
	authed.GET("/files", s.Files.List)
	authed.GET("/files/:file_id", s.Files.Get)
	authed.DELETE("/files/:file_id", s.Files.Delete)
	authed.GET("/files/:file_id/download", s.Files.Download)
	authed.GET("/files/:file_id/content", s.Files.GetContent)
	authed.POST("/files/:file_id/content", s.Files.UpdateContent)
	authed.POST("/files/:file_id/share", s.Files.Share)
	authed.POST("/files/:file_id/convert-to-docx", s.Files.ConvertToDocx)
	authed.POST("/files/:file_id/update-quill-content", s.Files.UpdateQuillContent)
	authed.POST("/files/:file_id/convert-existing-to-quill", s.Files.ConvertExistingToQuill)

	authed.GET("/file/:file_id/users", s.Hub.GetActiveUsers)
	authed.POST("/file/:file_id/broadcast", s.Hub.BroadcastToRoom)
}

// requestLogger records one structured line per request, using the error
// level for server failures
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		logger := slogging.Get()
		if status >= http.StatusInternalServerError {
			logger.ErrorCtx(c.Request.Context(), "request failed", attrs...)
		} else {
			logger.InfoCtx(c.Request.Context(), "request completed", attrs...)
		}
	}
}

// corsMiddleware allows the browser editor, served from another origin, to
// call the API with its bearer token.
func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
