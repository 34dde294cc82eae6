package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/auth"
	"github.com/cloudvault/cloudvault-backend/internal/auth/middleware"
	"github.com/cloudvault/cloudvault-backend/internal/conf"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/redis"
	"github.com/cloudvault/cloudvault-backend/internal/storage/service"
)

// HTTPServer hosts the storage API
type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

// NewHTTPServer builds the router and wires all routes
func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	redisClient *redis.Client,
	backendService *service.BackendService,
	fileService *service.FileService,
	folderService *service.FolderService,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)

	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtManager, log))
	api.Use(middleware.APIRateLimiter(redisClient, log))

	files := api.Group("/files")
	{
		files.POST("/admit", middleware.UploadRateLimiter(redisClient, log), fileService.Admit)
		files.POST("", middleware.UploadRateLimiter(redisClient, log), fileService.Upload)
		files.GET("/:id", fileService.Get)
		files.GET("/:id/download", fileService.Download)
		files.POST("/:id/versions", fileService.UploadVersion)
		files.DELETE("/:id", fileService.Delete)
		files.POST("/:id/restore", fileService.Restore)
		files.DELETE("/:id/purge", fileService.Purge)
	}

	folders := api.Group("/folders")
	{
		folders.POST("", folderService.Create)
		folders.GET("/:id", folderService.Get)
		folders.GET("/:id/subtree", folderService.Subtree)
		folders.PATCH("/:id/rename", folderService.Rename)
		folders.PATCH("/:id/move", folderService.Move)
		folders.DELETE("/:id", folderService.Delete)
		folders.POST("/:id/restore", folderService.Restore)
	}

	api.GET("/quota", fileService.Quota)
	api.GET("/cleanup/suggestions", fileService.CleanupSuggestions)

	admin := api.Group("/admin")
	admin.Use(middleware.AdminRequired())
	{
		admin.POST("/backends", backendService.Register)
		admin.GET("/backends", backendService.List)
		admin.GET("/backends/:id", backendService.Get)
		admin.PUT("/backends/:id/default", backendService.SetDefault)
		admin.POST("/backends/:id/probe", backendService.ProbeNow)
		admin.DELETE("/backends/:id", backendService.Deactivate)
		admin.GET("/quotas/:owner_id", backendService.GetOwnerQuota)
		admin.PUT("/quotas/:owner_id", backendService.SetOwnerQuota)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log,
	}
}

// Start blocks serving requests until Stop is called
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// LoggerMiddleware logs one line per request
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
