package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/pajalhq/pajal-api/api/swagger"
	"github.com/pajalhq/pajal-api/internal/handler"
	"github.com/pajalhq/pajal-api/internal/middleware"
	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/repository"
	"github.com/pajalhq/pajal-api/internal/service"
	"github.com/pajalhq/pajal-api/pkg/cache"
	"github.com/pajalhq/pajal-api/pkg/clock"
	"github.com/pajalhq/pajal-api/pkg/config"
	"github.com/pajalhq/pajal-api/pkg/database"
	"github.com/pajalhq/pajal-api/pkg/logger"
	corsmiddleware "github.com/pajalhq/pajal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pajalhq/pajal-api/pkg/middleware/requestid"
)

// @title PAJAL API
// @version 1.0.0
// @description Class scheduling and notification service
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, usage cache disabled", "error", err)
		redisClient = nil
	}

	location := cfg.Location()
	clk := clock.Real{}
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, preferenceRepo, validate, logr, clk, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "pajal-api",
		DefaultPassword:    cfg.Auth.DefaultPassword,
		UsernameDomain:     cfg.Auth.UsernameDomain,
		Location:           location,
	})
	usageSvc := service.NewUsageService(sessionRepo, userRepo, cacheRepo, metricsSvc, logr, clk, cfg.Usage.CacheTTL)
	sessionSvc := service.NewSessionService(sessionRepo, userRepo, notificationRepo, preferenceRepo, usageSvc, validate, logr, clk, location, cfg.Sweep.NotificationGranularity)
	userSvc := service.NewUserService(userRepo, sessionRepo, notificationRepo, validate, logr, clk, location, cfg.Sweep.NotificationGranularity)
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, sessionRepo, logr, clk)
	preferenceSvc := service.NewPreferenceService(preferenceRepo, validate, logr)
	sweeperSvc := service.NewSweeperService(sessionRepo, userRepo, notificationRepo, metricsSvc, logr, clk, location, cfg.Sweep.NotificationGranularity)

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	userHandler := handler.NewUserHandler(userSvc)
	preferenceHandler := handler.NewPreferenceHandler(preferenceSvc)
	usageHandler := handler.NewUsageHandler(usageSvc)
	metaHandler := handler.NewMetaHandler(clk, location)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		authed := api.Group("", middleware.JWT(authSvc))
		{
			authed.GET("/profile", userHandler.Profile)
			authed.PUT("/profile", userHandler.UpdateProfile)

			authed.GET("/preferences", preferenceHandler.Get)
			authed.PUT("/preferences", preferenceHandler.Update)

			authed.GET("/meta/class-types", metaHandler.ClassTypes)
			authed.GET("/meta/rooms", metaHandler.Rooms)

			sessions := authed.Group("/sessions")
			{
				sessions.GET("", sessionHandler.ListMine)
				sessions.GET("/:id", sessionHandler.Get)
				sessions.POST("", middleware.RequireRoles(models.RoleLecturer), sessionHandler.Create)
				sessions.POST("/bulk", middleware.RequireRoles(models.RoleLecturer), sessionHandler.BulkCreate)
				sessions.PUT("/:id", middleware.RequireRoles(models.RoleLecturer, models.RoleAdministrator), sessionHandler.Update)
				sessions.POST("/:id/cancel", middleware.RequireRoles(models.RoleLecturer, models.RoleAdministrator), sessionHandler.Cancel)
				sessions.DELETE("/:id", sessionHandler.Delete)
				sessions.POST("/:id/archive", sessionHandler.Archive)
				sessions.POST("/:id/restore", sessionHandler.Restore)
			}

			notifications := authed.Group("/notifications")
			{
				notifications.GET("", notificationHandler.List)
				notifications.POST("/read-all", notificationHandler.MarkAllRead)
				notifications.POST("/:id/read", notificationHandler.MarkRead)
				notifications.DELETE("", notificationHandler.DeleteAll)
				notifications.DELETE("/:id", notificationHandler.Delete)
			}

			admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdministrator))
			{
				admin.GET("/sessions", sessionHandler.List)
				admin.GET("/usage", usageHandler.Report)
				admin.GET("/users", userHandler.List)
				admin.GET("/users/:id", userHandler.Get)
				admin.PUT("/users/:id", userHandler.Update)
				admin.POST("/users/:id/suspend", userHandler.SetSuspended)
				admin.DELETE("/users/:id", userHandler.Delete)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweepQueue interface{ Stop() }
	if cfg.Sweep.Enabled {
		queue := sweeperSvc.Queue(cfg.Sweep.Workers, logr)
		sweeperSvc.Run(ctx, queue, cfg.Sweep.Interval)
		sweepQueue = queue
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Sugar().Infow("shutting down")

	cancel()
	if sweepQueue != nil {
		sweepQueue.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
