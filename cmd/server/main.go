package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cloudvault/cloudvault-backend/internal/conf"
	"github.com/cloudvault/cloudvault-backend/internal/notify"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/redis"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/workerpool"
	"github.com/cloudvault/cloudvault-backend/internal/server"
	"github.com/cloudvault/cloudvault-backend/internal/storage/biz"
	"github.com/cloudvault/cloudvault-backend/internal/storage/data"
	"github.com/cloudvault/cloudvault-backend/internal/storage/models"
	"github.com/cloudvault/cloudvault-backend/internal/storage/service"
)

var configFile = flag.String("config", "config.yaml", "config file path")

func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	log.Info("config loaded successfully")

	db, err := database.New(&config.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := models.AutoMigrate(ctx, db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	redisClient, err := redis.New(&config.Redis, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	probePool, err := workerpool.New(&workerpool.Config{
		Workers:   config.Health.MaxConcurrent,
		QueueSize: config.Health.MaxConcurrent * 4,
	}, log.Logger)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer probePool.Shutdown()

	// Repositories
	backendRepo := data.NewBackendRepo(db, log)
	fileRepo := data.NewFileRepo(db, log)
	folderRepo := data.NewFolderRepo(db, log)
	quotaStore := data.NewQuotaStore(db, log)
	txManager := data.NewTxManager(db)
	objectStore := data.NewObjectStore(db, log)
	prober := data.NewBackendProber(db, log)

	// Use cases
	registry := biz.NewBackendRegistry(backendRepo, biz.RegistryConfig{
		HealthyThreshold:   config.Health.HealthyThreshold,
		UnhealthyThreshold: config.Health.UnhealthyThreshold,
	}, log)
	quota := biz.NewQuotaLedger(quotaStore, biz.QuotaConfig{
		DefaultLimit:  config.Quota.DefaultLimit,
		WarnThreshold: config.Quota.WarnThreshold,
	}, log)
	catalog := biz.NewFileCatalog(fileRepo, quota, registry, log)
	tree := biz.NewFolderTree(folderRepo, fileRepo, txManager, log)
	probe := biz.NewHealthProbe(prober, probePool, log)
	admission := biz.NewAdmissionController(quota, registry, catalog, biz.UploadPolicy{
		MaxFileSize:      config.Upload.MaxFileSize,
		AllowedMIMETypes: config.Upload.AllowedMIMETypes,
	}, log)
	advisor := biz.NewCleanupAdvisor(fileRepo, log)

	// Quota warnings over SMTP
	mailer, err := notify.NewMailer(notify.MailerConfig{
		Host:     config.SMTP.Host,
		Port:     config.SMTP.Port,
		Username: config.SMTP.Username,
		Password: config.SMTP.Password,
		FromAddr: config.SMTP.FromAddr,
		FromName: config.SMTP.FromName,
		Enabled:  config.SMTP.Enabled,
	}, notify.NopResolver{}, log)
	if err != nil {
		log.Fatal("failed to create mailer", zap.Error(err))
	}
	quota.SetWarningSink(mailer)

	// Services
	backendService := service.NewBackendService(registry, probe, quota, log)
	fileService := service.NewFileService(admission, catalog, registry, quota, advisor, objectStore, log)
	folderService := service.NewFolderService(tree, log)

	httpServer := server.NewHTTPServer(config, log, redisClient, backendService, fileService, folderService)

	// Background health probing
	probeCtx, stopProbes := context.WithCancel(ctx)
	scheduler := biz.NewProbeScheduler(registry, probe, config.Health.Interval, log)
	go scheduler.Start(probeCtx)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopProbes()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server exited")
}
