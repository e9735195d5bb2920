// The schedule worker runs the schedule poll loop without the HTTP
// surface, for deployments that separate API and background processing.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/config"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports/scheduler"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if cfg.Storage.Backend == "s3" {
		store, err = storage.NewS3Store(ctx, cfg.Storage.S3Region, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	} else {
		store, err = storage.NewLocalStore(cfg.Storage.ReportDir)
	}
	if err != nil {
		logger.Fatal("failed to initialize artifact store", zap.Error(err))
	}

	repo := reports.NewPostgresRepository(db)
	service := reports.NewService(repo, store, logger)

	var mailer scheduler.Mailer
	if cfg.SES.Region != "" {
		sesMailer, err := scheduler.NewSESMailer(ctx, cfg.SES.Region, cfg.SES.FromAddress, "Reporting")
		if err != nil {
			logger.Fatal("failed to initialize SES mailer", zap.Error(err))
		}
		mailer = sesMailer
	} else if cfg.SMTP.Host != "" {
		mailer = scheduler.NewSMTPMailer(
			cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.Username, cfg.SMTP.Password,
			cfg.SMTP.FromAddress, cfg.SMTP.FromName,
		)
	}

	manager := scheduler.NewManager(
		service,
		repo,
		scheduler.NewDeliveryManager(mailer, scheduler.NewSFTPClient(), logger),
		scheduler.Config{TickInterval: cfg.Scheduler.TickInterval, BatchSize: cfg.Scheduler.BatchSize},
		logger,
	)

	logger.Info("schedule worker starting")
	if err := manager.Start(ctx); err != nil {
		logger.Error("schedule manager exited", zap.Error(err))
		os.Exit(1)
	}
}
