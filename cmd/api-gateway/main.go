package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/handler"
	"github.com/noah-isme/campus-net-api/internal/middleware"
	"github.com/noah-isme/campus-net-api/internal/repository"
	"github.com/noah-isme/campus-net-api/internal/scheduler"
	"github.com/noah-isme/campus-net-api/internal/service"
	"github.com/noah-isme/campus-net-api/pkg/cache"
	"github.com/noah-isme/campus-net-api/pkg/config"
	"github.com/noah-isme/campus-net-api/pkg/database"
	"github.com/noah-isme/campus-net-api/pkg/export"
	"github.com/noah-isme/campus-net-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-net-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-net-api/pkg/middleware/requestid"
)

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, stats cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	defer cacheRepo.Close() //nolint:errcheck

	accountRepo := repository.NewAccountRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	operationRepo := repository.NewOperationLogRepository(db)
	changeRepo := repository.NewChangeLogRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	metricsSvc := service.NewMetricsService()
	statsSvc := service.NewStatsService(accountRepo, paymentRepo, cacheRepo, metricsSvc, cfg.Cache.StatsTTL, logr)
	ruleSvc := service.NewRuleService(ruleRepo, logr)
	bindingSvc := service.NewBindingService(db, accountRepo, studentRepo, changeRepo, statsSvc, logr)
	maintenanceSvc := service.NewMaintenanceService(db, accountRepo, studentRepo, changeRepo, operationRepo, settingRepo, statsSvc, cfg.Binding.Operator, logr)
	accountSvc := service.NewAccountService(db, accountRepo, studentRepo, ruleSvc, changeRepo, changeRepo, operationRepo, settingRepo, statsSvc, validator.New(), cfg.ZeroCost, cfg.Binding.Operator, logr)
	paymentSvc := service.NewPaymentService(db, paymentRepo, studentRepo, accountRepo, changeRepo, operationRepo, settingRepo, statsSvc,
		export.NewCSVExporter(), export.NewPDFExporter(), cfg.Binding, logr)
	auditSvc := service.NewAuditService(operationRepo, changeRepo, logr)

	accountHandler := handler.NewAccountHandler(accountSvc)
	bindingHandler := handler.NewBindingHandler(bindingSvc, metricsSvc)
	maintenanceHandler := handler.NewMaintenanceHandler(maintenanceSvc, accountSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	ruleHandler := handler.NewRuleHandler(ruleSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	statsHandler := handler.NewStatsHandler(statsSvc, metricsSvc, settingRepo)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/accounts", accountHandler.List)
		api.GET("/accounts/available", accountHandler.Available)
		api.GET("/accounts/:id", accountHandler.Get)
		api.POST("/accounts/import", accountHandler.Import)
		api.POST("/accounts/recalculate", accountHandler.Recalculate)
		api.POST("/accounts/integrity-fix", maintenanceHandler.FixIntegrity)

		api.POST("/bindings", bindingHandler.Bind)
		api.DELETE("/bindings/:accountId", bindingHandler.Release)

		api.GET("/students", accountHandler.SearchStudents)
		api.POST("/students/import", accountHandler.ImportStudents)

		api.GET("/payments", paymentHandler.List)
		api.GET("/payments/pending", paymentHandler.Pending)
		api.POST("/payments/import", paymentHandler.Import)
		api.POST("/payments/process", paymentHandler.Process)
		api.POST("/payments/retry", paymentHandler.Retry)

		api.POST("/maintenance/run", maintenanceHandler.Sweep)
		api.GET("/maintenance/duplicates", maintenanceHandler.Duplicates)
		api.POST("/maintenance/rebind", maintenanceHandler.Rebind)

		api.GET("/rules", ruleHandler.List)
		api.GET("/rules/:type", ruleHandler.Get)
		api.PUT("/rules", ruleHandler.Upsert)
		api.DELETE("/rules/:type", ruleHandler.Delete)

		api.GET("/audit/accounts/:id", accountHandler.History)
		api.GET("/audit/students/:id", auditHandler.StudentChanges)
		api.GET("/audit/changes", auditHandler.Changes)
		api.GET("/audit/operations", auditHandler.Operations)
		api.GET("/audit/operations/:id/changes", auditHandler.OperationChanges)

		api.GET("/stats", statsHandler.Pool)
		api.GET("/settings", statsHandler.Settings)
		api.PUT("/settings/:key", statsHandler.UpdateSetting)
	}

	sched := scheduler.New(maintenanceSvc, metricsSvc, cfg.Maintenance, logr)
	if err := sched.Start(); err != nil {
		logr.Fatal("failed to start maintenance scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
