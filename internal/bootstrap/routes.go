package bootstrap

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/employee-records-api/api/swagger"
	"github.com/noah-isme/employee-records-api/internal/handler"
	"github.com/noah-isme/employee-records-api/internal/middleware"
	"github.com/noah-isme/employee-records-api/internal/models"
	"github.com/noah-isme/employee-records-api/pkg/config"
	"github.com/noah-isme/employee-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/employee-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/employee-records-api/pkg/middleware/requestid"
)

// maxMultipartMemory keeps a maximum-size document in memory while parsing.
const maxMultipartMemory = 2 << 20

type handlerSet struct {
	auth      *handler.AuthHandler
	employees *handler.EmployeeHandler
	audit     *handler.AuditHandler
	metrics   *handler.MetricsHandler
}

func (a *App) routes(h handlerSet, audit middleware.AuditRecorder) *gin.Engine {
	if a.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	authGroup := api.Group("/auth")
	authGroup.POST("/login", h.auth.Login)
	authGroup.POST("/logout", middleware.JWT(a.Auth), h.auth.Logout)
	authGroup.GET("/me", middleware.JWT(a.Auth), h.auth.Me)

	// Signed download links authenticate through their token.
	api.GET("/employees/:id/document/download", h.employees.DownloadDocument)

	employees := api.Group("/employees")
	employees.Use(middleware.JWT(a.Auth), middleware.RBAC(models.RoleAdmin, models.RoleUser))
	employees.GET("", h.employees.Search)
	employees.POST("", h.employees.Create)
	employees.GET("/export", middleware.Audit(audit, a.logger, models.AuditActionEmployeeExport, "employee"), h.employees.Export)
	employees.POST("/bulk-delete", h.employees.BulkDelete)
	employees.GET("/:id", h.employees.Get)
	employees.PUT("/:id", h.employees.Update)
	employees.DELETE("/:id", h.employees.Delete)
	employees.GET("/:id/document", h.employees.DocumentLink)

	admin := api.Group("")
	admin.Use(middleware.JWT(a.Auth), middleware.RequireAdmin())
	admin.GET("/audit-logs", h.audit.List)
	admin.GET("/system/metrics", h.metrics.System)

	return r
}
