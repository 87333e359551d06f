package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"civicspot/controllers"
	"civicspot/metrics"
	middlewares "civicspot/middleware"
	"civicspot/models"
)

// maxMultipartMemory covers a full create request held in memory.
const maxMultipartMemory = (models.MaxImages*5 + 1) << 20

type Handlers struct {
	Reports *controllers.ReportController
	// AdminSetup is nil when the bootstrap routes are disabled.
	AdminSetup *controllers.AdminSetupController
	System     *controllers.SystemController

	Auth    *middlewares.Auth
	Limiter *middlewares.RateLimiter

	AllowedOrigins []string
}

func SetupRoutes(r *gin.Engine, h Handlers) {
	r.MaxMultipartMemory = maxMultipartMemory

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     h.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
		ExposeHeaders:    []string{middlewares.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/", h.System.Root)
	r.GET("/healthz", h.System.Health)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	SetupReportRoutes(api, h)
	if h.AdminSetup != nil {
		SetupAdminSetupRoutes(api, h.AdminSetup)
	}

	r.NoRoute(controllers.NotFound)
}

func SetupReportRoutes(api *gin.RouterGroup, h Handlers) {
	protect := h.Auth.Required()
	admin := h.Auth.RequireAdmin()
	limit := h.Limiter.Middleware()

	reports := api.Group("/reports")
	{
		reports.GET("", h.Reports.List)
		reports.GET("/mine", protect, h.Reports.Mine)
		reports.GET("/stats", protect, admin, h.Reports.Stats)
		reports.GET("/:id", h.Reports.Get)

		reports.POST("", limit, protect, h.Reports.Create)
		reports.PUT("/:id", limit, protect, h.Reports.Update)
		reports.DELETE("/:id", limit, protect, h.Reports.Delete)
		reports.POST("/:id/comments", limit, protect, h.Reports.AddComment)
		reports.POST("/:id/upvote", limit, protect, h.Reports.Upvote)

		reports.PUT("/:id/status", protect, admin, h.Reports.UpdateStatus)
		reports.PUT("/:id/assign", protect, admin, h.Reports.Assign)
	}
}

// SetupAdminSetupRoutes mounts the unauthenticated bootstrap routes.
func SetupAdminSetupRoutes(api *gin.RouterGroup, ac *controllers.AdminSetupController) {
	setup := api.Group("/admin-setup")
	setup.POST("/make-admin", ac.MakeAdmin)
	setup.GET("/users", ac.ListUsers)
}
