package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/factory-ops-api/api/swagger"
	"github.com/noah-isme/factory-ops-api/internal/handler"
	"github.com/noah-isme/factory-ops-api/internal/middleware"
	"github.com/noah-isme/factory-ops-api/internal/models"
	"github.com/noah-isme/factory-ops-api/pkg/config"
	"github.com/noah-isme/factory-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/factory-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/factory-ops-api/pkg/middleware/requestid"
)

// Router builds the HTTP API.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Services.Metrics))

	metricsHandler := handler.NewMetricsHandler(a.Services.Metrics, a.checks...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.EnableDocs && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(a.Services.Auth))

	jigs := handler.NewJigRequestHandler(a.Services.JigRequests, a.Workspace)
	jigGroup := registerRecordRoutes(api, "/jig-requests", models.KindJigRequest, a, jigs.RecordHandler, jigs.Create, jigs.Update)
	jigGroup.POST("/:id/receive", jigs.Receive)

	samples := handler.NewSampleRequestHandler(a.Services.SampleRequests, a.Workspace)
	registerRecordRoutes(api, "/sample-requests", models.KindSampleRequest, a, samples.RecordHandler, samples.Create, samples.Update)

	productions := handler.NewProductionRequestHandler(a.Services.ProductionRequests, a.Workspace)
	registerRecordRoutes(api, "/production-requests", models.KindProductionRequest, a, productions.RecordHandler, productions.Create, productions.Update)

	inspections := handler.NewQualityInspectionHandler(a.Services.Inspections, a.Workspace)
	registerRecordRoutes(api, "/quality-inspections", models.KindQualityInspection, a, inspections.RecordHandler, inspections.Create, inspections.Update)

	notifications := handler.NewNotificationHandler(a.Services.Notifications)
	notificationGroup := api.Group("/notifications")
	notificationGroup.GET("", notifications.List)
	notificationGroup.POST("/read-all", notifications.MarkAllRead)
	notificationGroup.GET("/:id", notifications.Get)
	notificationGroup.POST("/:id/read", notifications.MarkRead)

	masterData := handler.NewMasterDataHandler(a.Services.MasterData)
	masterGroup := api.Group("/master-data", middleware.Audit(a.Logger, "master_data"))
	masterGroup.GET("", masterData.Get)
	masterGroup.PUT("/:list", middleware.RequireRoles(models.RoleAdmin), masterData.Replace)
	masterGroup.PATCH("/:list", middleware.RequireRoles(models.RoleAdmin), masterData.Merge)

	api.GET("/system/metrics", middleware.RequireRoles(models.RoleAdmin), metricsHandler.System)

	return r
}

func registerRecordRoutes(api *gin.RouterGroup, path string, kind models.RecordKind, a *App, h *handler.RecordHandler, create, update gin.HandlerFunc) *gin.RouterGroup {
	group := api.Group(path, middleware.Audit(a.Logger, string(kind)))
	group.GET("", h.List)
	group.POST("", create)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", update)
	group.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), h.Delete)
	group.POST("/:id/status", h.ChangeStatus)
	group.POST("/:id/comments", h.AddComment)
	group.POST("/:id/comments/read", h.MarkCommentsRead)
	group.GET("/:id/events", h.Events)
	return group
}
