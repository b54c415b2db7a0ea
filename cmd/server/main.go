// Package main runs the affective-state monitoring HTTP server with WebSocket
// streaming and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edusense/backend/config"
	"github.com/edusense/backend/internal/affect"
	"github.com/edusense/backend/internal/auth"
	"github.com/edusense/backend/internal/middleware"
	"github.com/edusense/backend/internal/monitor"
	"github.com/edusense/backend/internal/realtime"
	"github.com/edusense/backend/internal/risk"
	"github.com/edusense/backend/internal/vision"
	"github.com/edusense/backend/pkg/database"
	"github.com/edusense/backend/pkg/queue"
	"github.com/edusense/backend/pkg/redis"
	"github.com/edusense/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Affective-state pipeline
	mapper := affect.NewMapper()
	registry := monitor.NewRegistry(monitor.RegistryConfig{
		Smoother: affect.SmootherConfig{
			WindowSize:   cfg.Engine.WindowSize,
			Alpha:        cfg.Engine.Alpha,
			NoFaceGrace:  cfg.Engine.NoFaceGrace,
			NoFacePolicy: affect.NoFacePolicy(cfg.Engine.NoFacePolicy),
		},
		IdleTimeout:   cfg.Engine.IdleTimeout,
		SweepInterval: cfg.Engine.SweepInterval,
		MaxSessions:   cfg.Engine.MaxSessions,
	}, mapper, logger)

	preprocessor := vision.NewPreprocessor(cfg.Engine.MaxFrameBytes, 0)
	classifier := vision.NewHTTPClassifier(cfg.Inference.BaseURL, cfg.Inference.Timeout, logger)

	monitorRepo := monitor.NewRepository(pool)
	readingCache := monitor.NewRedisReadingCache(rdb)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	monitorSvc := monitor.NewService(registry, preprocessor, classifier,
		monitorRepo, readingCache, hub, jobQueue, cfg.Engine.FrameBudget, logger)
	registry.SetEvictionHandler(func(m *monitor.SessionMonitor) {
		monitorSvc.HandleEviction(m)
		hub.BroadcastSessionEnded(m.ID, "idle_evicted")
	})
	registry.Start()
	defer registry.Stop()

	monitorHandler := monitor.NewHandler(monitorSvc)

	// Dropout risk
	riskRepo := risk.NewRepository(pool)
	riskHandler := risk.NewHandler(riskRepo, risk.NewScorer())

	// Auth; logins feed the engagement features
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, monitorRepo, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/api/v1/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("/api/v1")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Monitoring sessions: frames come from the student's own client,
		// session control and status are open to teachers too.
		api.POST("/monitor/sessions", monitorHandler.StartSession)
		api.POST("/monitor/sessions/:id/frames", monitorHandler.AnalyzeFrame)
		api.GET("/monitor/sessions/:id/status", monitorHandler.Status)
		api.DELETE("/monitor/sessions/:id", monitorHandler.EndSession)

		// Dropout risk (teacher/admin)
		api.POST("/risk/predict", middleware.RequireRole("admin", "teacher"), riskHandler.Predict)
		api.GET("/risk/roster", middleware.RequireRole("admin", "teacher"), riskHandler.Roster)
		api.GET("/risk/students/:id", middleware.RequireRole("admin", "teacher"), riskHandler.StudentRisk)
		api.POST("/risk/students/:id/scores", middleware.RequireRole("admin", "teacher"), riskHandler.RecordScore)
	}

	// WebSocket reading stream (token in query; no Authorization header required)
	router.GET("/ws/monitor", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
