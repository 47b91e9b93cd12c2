package router

import (
	"github.com/gin-gonic/gin"

	"ddtcorpus/internal/config"
	"ddtcorpus/internal/handler"
	"ddtcorpus/internal/middleware"
	"ddtcorpus/internal/service"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	cfg *config.Config,
	authSvc service.AuthService,
	authH *handler.AuthHandler,
	docH *handler.DocumentHandler,
	batchH *handler.BatchHandler,
	reviewH *handler.ReviewHandler,
	exportH *handler.ExportHandler,
	statsH *handler.StatsHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	// Public auth routes
	v1.POST("/auth/login", authH.Login)

	// Everything else requires the reviewer token.
	protected := v1.Group("")
	protected.Use(middleware.Auth(authSvc))

	docs := protected.Group("/documents")
	docs.POST("", docH.Upload)
	docs.GET("", docH.List)
	docs.GET("/:id", docH.GetByID)
	docs.POST("/:id/reset", docH.Reset)
	docs.DELETE("/:id", docH.Delete)

	batch := protected.Group("/batch")
	batch.POST("", batchH.Start)
	batch.GET("", batchH.Status)
	batch.DELETE("", batchH.Cancel)

	review := protected.Group("/review")
	review.GET("", reviewH.Queue)
	review.POST("/:id/validate", reviewH.Validate)
	review.POST("/:id/reject", reviewH.Reject)

	protected.POST("/export", exportH.Export)
	protected.GET("/stats", statsH.Get)

	return r
}
