package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	_ "github.com/userfetch/userfetch/docs"
	"github.com/userfetch/userfetch/internal/api/routes"
	"github.com/userfetch/userfetch/internal/application/services/auth"
	"github.com/userfetch/userfetch/internal/application/services/scheduler"
	settingssvc "github.com/userfetch/userfetch/internal/application/services/settings"
	"github.com/userfetch/userfetch/internal/application/services/task"
	"github.com/userfetch/userfetch/internal/infrastructure/config"
	"github.com/userfetch/userfetch/internal/infrastructure/eventhub"
	"github.com/userfetch/userfetch/internal/infrastructure/fetcher"
	"github.com/userfetch/userfetch/internal/infrastructure/repository"
	"github.com/userfetch/userfetch/internal/infrastructure/secretbox"
	"github.com/userfetch/userfetch/pkg/logger"
)

// @title UserFetch API
// @version 1.0
// @description 用户作品采集任务编排与调度服务

// @host localhost:8080
// @BasePath /api
// @schemes http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := logger.Init(logger.Options{
		Level:     cfg.Log.Level,
		Output:    cfg.Log.Output,
		Format:    cfg.Log.Format,
		FilePath:  cfg.Log.FilePath,
		Colorize:  cfg.Log.Colorize,
		AddSource: cfg.Log.AddSource,
	}); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := repository.Open(cfg.Storage.TaskDBFile)
	if err != nil {
		log.Fatal("Failed to open task database:", err)
	}
	defer db.Close()

	taskRepo, err := repository.NewTaskRepository(db, cfg.Storage.HistoryLimit)
	if err != nil {
		log.Fatal("Failed to initialize task repository:", err)
	}
	scheduleRepo, err := repository.NewScheduleRepository(db)
	if err != nil {
		log.Fatal("Failed to initialize schedule repository:", err)
	}

	box := secretbox.New(cfg.Storage.SecretKeyFile, "")
	settingsService, err := settingssvc.NewService(cfg.Storage.SettingsFile, box, settingssvc.PathPolicy{
		DefaultRoot:  cfg.Download.Path,
		AllowedRoots: cfg.Download.AllowedRoots,
		Restricted:   cfg.Download.Restricted,
	})
	if err != nil {
		log.Fatal("Failed to initialize settings service:", err)
	}

	authService, err := auth.NewService(auth.Options{
		AuthFile:          cfg.Auth.AuthFile,
		TokenTTL:          time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second,
		BootstrapPassword: cfg.Auth.BootstrapPassword,
		Limiter: auth.NewLoginLimiter(
			cfg.Auth.LoginMaxAttempts,
			time.Duration(cfg.Auth.LoginWindowSecs)*time.Second,
			time.Duration(cfg.Auth.LoginBlockSecs)*time.Second,
		),
		AllowedDownloadRoots: cfg.Download.AllowedRoots,
	})
	if err != nil {
		log.Fatal("Failed to initialize auth service:", err)
	}

	hub := eventhub.New()
	fetchClient := fetcher.NewClient(cfg.Fetcher.BaseURL, cfg.Fetcher.QPS)

	taskManager, err := task.NewManager(taskRepo, hub, settingsService, fetchClient)
	if err != nil {
		log.Fatal("Failed to initialize task manager:", err)
	}

	schedulerService, err := scheduler.New(scheduleRepo, taskManager,
		time.Duration(cfg.Scheduler.TickIntervalSecs)*time.Second)
	if err != nil {
		log.Fatal("Failed to initialize scheduler:", err)
	}
	if cfg.Scheduler.Enabled {
		schedulerService.Start()
	}

	router := gin.New()
	routes.Setup(router, routes.Services{
		Auth:     authService,
		Settings: settingsService,
		Tasks:    taskManager,
		Schedule: schedulerService,
	})

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if cfg.Scheduler.Enabled {
		schedulerService.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	taskManager.Shutdown()
	logger.Info("server stopped")
}
