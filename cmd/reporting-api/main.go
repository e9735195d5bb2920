package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/auth"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/config"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/reports/scheduler"
	"github.com/shahrukhfiaz/aivoiceplatform-sub001/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger(os.Getenv("LOG_LEVEL"))
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
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize artifact store", zap.Error(err))
	}

	repo := reports.NewPostgresRepository(db)
	service := reports.NewService(repo, store, logger)
	handler := reports.NewHandler(service, logger)

	if err := service.SeedSystemReports(context.Background()); err != nil {
		logger.Fatal("failed to seed system reports", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
	})

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret))
	handler.RegisterRoutes(api)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		manager := scheduler.NewManager(
			service,
			repo,
			scheduler.NewDeliveryManager(newMailer(ctx, cfg, logger), scheduler.NewSFTPClient(), logger),
			scheduler.Config{TickInterval: cfg.Scheduler.TickInterval, BatchSize: cfg.Scheduler.BatchSize},
			logger,
		)
		go func() {
			if err := manager.Start(ctx); err != nil {
				logger.Error("schedule manager exited", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting reporting api", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func newStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Storage.Backend == "s3" {
		logger.Info("using s3 artifact store",
			zap.String("bucket", cfg.Storage.S3Bucket),
			zap.String("region", cfg.Storage.S3Region))
		return storage.NewS3Store(context.Background(), cfg.Storage.S3Region, cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	}
	logger.Info("using local artifact store", zap.String("dir", cfg.Storage.ReportDir))
	return storage.NewLocalStore(cfg.Storage.ReportDir)
}

func newMailer(ctx context.Context, cfg *config.Config, logger *zap.Logger) scheduler.Mailer {
	if cfg.SES.Region != "" {
		mailer, err := scheduler.NewSESMailer(ctx, cfg.SES.Region, cfg.SES.FromAddress, "Reporting")
		if err != nil {
			logger.Warn("failed to initialize SES mailer, falling back to SMTP", zap.Error(err))
		} else {
			return mailer
		}
	}
	if cfg.SMTP.Host == "" {
		return nil
	}
	return scheduler.NewSMTPMailer(
		cfg.SMTP.Host, cfg.SMTP.Port,
		cfg.SMTP.Username, cfg.SMTP.Password,
		cfg.SMTP.FromAddress, cfg.SMTP.FromName,
	)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
