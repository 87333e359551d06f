package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-gonic/gin"

	"civicspot/config"
	"civicspot/controllers"
	db "civicspot/database"
	"civicspot/events"
	"civicspot/gcs"
	"civicspot/jobs"
	"civicspot/metrics"
	middlewares "civicspot/middleware"
	"civicspot/routes"
	"civicspot/services"
	"civicspot/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	setupLogging(cfg)

	ctx := context.Background()

	store, err := db.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer store.Disconnect()
	if err := store.EnsureIndexes(ctx); err != nil {
		log.WithError(err).Warn("some indexes could not be created")
	}

	media, err := gcs.New(ctx, gcs.Config{
		Bucket:          cfg.GCS.Bucket,
		Folder:          cfg.GCS.Folder,
		CredentialsFile: cfg.GCS.CredentialsFile,
		MaxBytes:        cfg.GCS.MaxImageBytes,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialise Google Cloud Storage")
	}
	defer media.Close()

	var publisher services.EventPublisher = events.Noop{}
	if cfg.AMQP.URL != "" {
		p, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to RabbitMQ")
		}
		defer p.Close()
		publisher = p
	} else {
		log.Info("AMQP_URL not set, report events are not published")
	}

	var notifier services.Notifier = utils.NoopNotifier{}
	if cfg.Mail.SendGridAPIKey != "" {
		notifier = utils.NewStatusMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
	} else {
		log.Info("SENDGRID_API_KEY not set, status emails are disabled")
	}

	reports := db.NewReportRepository(store.Reports, cfg.HTTP.RequestTimeout)
	users := db.NewUserRepository(store.Users, cfg.HTTP.RequestTimeout)
	orphans := db.NewOrphanRepository(store.Orphans, cfg.HTTP.RequestTimeout)

	reportService := services.NewReportService(services.Deps{
		Reports:  reports,
		Users:    users,
		Media:    media,
		Orphans:  orphans,
		Events:   publisher,
		Notifier: notifier,
	})

	cleanup, err := jobs.NewMediaCleanup(orphans, media, cfg.Cleanup.MaxAttempts).Schedule(cfg.Cleanup.Schedule)
	if err != nil {
		log.WithError(err).Fatal("invalid MEDIA_CLEANUP_SCHEDULE")
	}
	cleanup.Start()

	limiter := middlewares.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, 10*time.Minute)
	defer limiter.Stop()

	handlers := routes.Handlers{
		Reports:        controllers.NewReportController(reportService, cfg.GCS.MaxImageBytes, cfg.Debug()),
		System:         controllers.NewSystemController(store),
		Auth:           middlewares.NewAuth(cfg.JWT.Secret, users),
		Limiter:        limiter,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	if cfg.AdminSetupEnabled {
		log.Warn("admin setup routes are enabled")
		handlers.AdminSetup = controllers.NewAdminSetupController(services.NewAdminSetup(users), cfg.Debug())
	}

	metrics.Register()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	routes.SetupRoutes(r, handlers)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("CivicSpot API listening on %s (%s)", srv.Addr, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	select {
	case <-cleanup.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("media cleanup still running at shutdown")
	}

	log.Info("server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.IsProduction() {
		log.SetHandler(json.New(os.Stdout))
		log.SetLevel(log.InfoLevel)
		return
	}
	log.SetHandler(text.New(os.Stderr))
	log.SetLevel(log.DebugLevel)
}
