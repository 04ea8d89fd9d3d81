package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/filecollab/filecollab/api"
	"github.com/filecollab/filecollab/auth"
	"github.com/filecollab/filecollab/internal/config"
	"github.com/filecollab/filecollab/internal/converter"
	"github.com/filecollab/filecollab/internal/objectstore"
	"github.com/filecollab/filecollab/internal/slogging"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := slogging.Initialize(slogging.Config{
		Level:            slogging.ParseLogLevel(cfg.Logging.Level),
		IsDev:            cfg.Logging.IsDev,
		LogDir:           cfg.Logging.LogDir,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		AlsoLogToConsole: cfg.Logging.AlsoLogToConsole,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := slogging.Get()
	defer logger.Close()

	if !cfg.Logging.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&api.User{}, &api.File{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	logger.Info("Connected to postgres at %s", cfg.Database.Postgres.Host)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr(), err)
	}
	logger.Info("Connected to redis at %s", cfg.RedisAddr())

	objects, err := objectstore.NewS3Store(context.Background(), cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	authSvc, err := auth.NewService(auth.Config{
		Secret:            cfg.Auth.JWT.Secret,
		ExpirationSeconds: cfg.Auth.JWT.ExpirationSeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := api.NewWebSocketHub(authSvc, api.WebSocketHubConfig{
		SendBufferSize:    cfg.WebSocket.SendBufferSize,
		MaxMessageBytes:   int64(cfg.WebSocket.MaxMessageBytes),
		InactivityTimeout: cfg.WebSocketInactivityTimeout(),
	}, api.NewRelayMetrics(registry))

	conv := converter.New()
	fileStore := api.NewCachedFileStore(api.NewGormFileStore(db), redisClient)
	userStore := api.NewGormUserStore(db)

	server := api.NewServer(
		authSvc,
		api.NewUserHandler(userStore, authSvc),
		api.NewFileHandler(fileStore, objects, conv, authSvc, cfg.MaxUploadBytes()),
		hub,
		cfg.Server.CORSOrigin,
		registry,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	server.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", cfg.ServerAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("Received %s, shutting down", sig)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("Error closing redis client: %v", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
