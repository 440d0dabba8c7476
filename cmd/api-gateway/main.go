package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniadm/academic-api/api/swagger"
	"github.com/uniadm/academic-api/internal/handler"
	"github.com/uniadm/academic-api/internal/middleware"
	"github.com/uniadm/academic-api/internal/models"
	"github.com/uniadm/academic-api/internal/repository"
	"github.com/uniadm/academic-api/internal/service"
	"github.com/uniadm/academic-api/pkg/cache"
	"github.com/uniadm/academic-api/pkg/config"
	"github.com/uniadm/academic-api/pkg/database"
	"github.com/uniadm/academic-api/pkg/logger"
	corsmiddleware "github.com/uniadm/academic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniadm/academic-api/pkg/middleware/requestid"
)

// @title Academic Approval API
// @version 1.0.0
// @description Multi-step approval workflows for academic catalog entities
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Workflow.DashboardCacheTTL, logr, false)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Workflow.DashboardCacheTTL, logr, true)
	}

	templateRepo := repository.NewWorkflowTemplateRepository(db, cfg.Workflow.TemplateCacheTTL)
	instanceRepo := repository.NewWorkflowInstanceRepository(db)
	recordRepo := repository.NewApprovalRecordRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "academic-api",
	})

	workflowSvc := service.NewWorkflowService(
		templateRepo,
		instanceRepo,
		recordRepo,
		userRepo,
		userRepo,
		db,
		logr,
		service.WithAuthorizer(service.RoleAuthorizer{}),
		service.WithSynchronizer(service.NewEntitySyncService(catalogRepo, logr)),
		service.WithDraftAppliers(map[models.EntityType]service.DraftApplier{
			models.EntityCourseChange: service.NewCourseDraftApplier(catalogRepo),
		}),
	)

	dashboardSvc := service.NewWorkflowDashboardService(instanceRepo, cacheSvc, cfg.Workflow.DashboardCacheTTL, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	workflowHandler := handler.NewWorkflowHandler(workflowSvc, dashboardSvc, metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	workflows := api.Group("/workflows", middleware.JWT(authSvc))
	{
		workflows.POST("", workflowHandler.Create)
		workflows.GET("", workflowHandler.List)
		workflows.GET("/entity", workflowHandler.GetByEntity)
		workflows.GET("/dashboard", workflowHandler.Dashboard)
		workflows.POST("/:id/actions", workflowHandler.ProcessAction)
		workflows.POST("/:id/reset", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), workflowHandler.Reset)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
