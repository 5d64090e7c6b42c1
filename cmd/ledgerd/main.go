package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"skillbadge/internal/archiver"
	"skillbadge/internal/config"
	apphttp "skillbadge/internal/http"
	"skillbadge/internal/identity"
	"skillbadge/internal/metrics"
	"skillbadge/internal/repository/sqlite"
	"skillbadge/internal/service"
	"skillbadge/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if strings.TrimSpace(cfg.Auth.RegisterPassword) == "" {
		logger.Warn("auth registration password is empty, registration is open")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	repos := sqlite.NewRepositories(db)
	if err := repos.Init(ctx); err != nil {
		logger.Fatalf("init repositories: %v", err)
	}

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	var archive archiver.Manager
	if storageSvc != nil {
		archive = archiver.NewManager(archiver.Config{
			Bucket:        cfg.Storage.Bucket,
			Prefix:        cfg.Storage.KeyPrefix,
			MaxConcurrent: cfg.Archive.Workers,
			Logger:        logger,
		}, repos.Badges, storageSvc)
		if err := archive.Start(context.Background()); err != nil {
			logger.Fatalf("start archiver: %v", err)
		}
		if err := archive.Resume(ctx); err != nil {
			logger.Warnf("resume archiving: %v", err)
		}
	}

	ledgerCfg := service.LedgerConfig{
		Badges:   repos.Badges,
		Profiles: repos.Profiles,
		Roles:    repos.Roles,
		Logger:   logger,
	}
	if archive != nil {
		ledgerCfg.Archiver = archive
	}
	ledgerService := service.NewLedgerService(ledgerCfg)
	accountService := service.NewAccountService(repos.Accounts, cfg.Auth.RegisterPassword)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Config{
		Ledger:   ledgerService,
		Accounts: accountService,
		Tokens:   identity.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL()),
		Storage:  storageSvc,
		Bucket:   cfg.Storage.Bucket,
		Metrics:  metrics.NewHTTPMetrics(reg),
		Gatherer: reg,
		Logger:   logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if archive != nil {
		archive.Shutdown()
	}

	logger.Info("bye")
}

// buildStorage returns nil when no bucket is configured; certificates are then not archived.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("no storage bucket configured, certificate archiving disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
