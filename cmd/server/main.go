package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerForm/config"
	"github.com/sifan077/PowerForm/internal/app/model"
	apprepository "github.com/sifan077/PowerForm/internal/app/repository"
	appserver "github.com/sifan077/PowerForm/internal/app/server"
	appservice "github.com/sifan077/PowerForm/internal/app/service"
	"github.com/sifan077/PowerForm/internal/http/middleware"
	"github.com/sifan077/PowerForm/internal/infra/logger"
	"github.com/sifan077/PowerForm/internal/infra/mailer"
	infraNATS "github.com/sifan077/PowerForm/internal/infra/nats"
	infraPostgres "github.com/sifan077/PowerForm/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/PowerForm/internal/infra/prometheus"
	infraRedis "github.com/sifan077/PowerForm/internal/infra/redis"
	"github.com/sifan077/PowerForm/internal/infra/retry"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	isDev := !cfg.App.IsProduction()
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
		Service:     "powerform",
	})
	defer func() { _ = logger.Sync() }()

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("identity_mode", cfg.Identity.Mode),
		zap.String("mail_transport", cfg.Mail.Transport),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if cfg.App.RunMigrations {
		if err := infraPostgres.Migrate(gormDB); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}
		log.Info("Database migrations applied")
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	pgCatalog := infraPostgres.NewCatalog(pool)
	catalog := apprepository.NewSchemaCatalog(pgCatalog)
	schema, err := apprepository.ResolveSchema(ctx, catalog)
	if err != nil {
		log.Fatal("Failed to resolve table layout", zap.Error(err))
	}
	log.Info("Resolved table layout",
		zap.Stringer("links", schema.Links),
		zap.Stringer("responses", schema.Responses),
	)

	linkRepo := apprepository.NewLinkRepository(gormDB, schema.Links)
	responseRepo := apprepository.NewResponseRepository(gormDB, schema)
	questionnaireRepo := apprepository.NewQuestionnaireRepository(gormDB)
	legacyRepo := apprepository.NewLegacySurveyRepository(gormDB, catalog)
	clientDir := apprepository.NewClientDirectory(gormDB, catalog)
	identity := appservice.NewClientIdentityMapper(cfg.Identity.Mode, clientDir)

	transport, closeTransport, err := newMailer(cfg, log)
	if err != nil {
		log.Fatal("Failed to set up mail transport", zap.Error(err))
	}
	defer closeTransport()

	dispatcher := appservice.NewDispatcher(appservice.DispatcherDeps{
		Logger:        logger.Named("notifications"),
		Mailer:        transport,
		From:          cfg.Mail.From,
		StudioAddress: cfg.Mail.StudioAddress,
		Subject:       cfg.Mail.Subject,
		Retry: retry.Policy{
			MaxAttempts:    cfg.Mail.MaxAttempts,
			Backoff:        retry.Linear(cfg.Mail.RetryBackoff),
			AttemptTimeout: cfg.Mail.SendTimeout,
		},
	})

	issuer := appservice.NewTokenIssuer(appservice.IssuerDeps{
		Logger:         logger.Named("issuer"),
		Links:          linkRepo,
		Questionnaires: questionnaireRepo,
		LegacySurveys:  legacyRepo,
		Identity:       identity,
		PublicBaseURL:  cfg.App.PublicBaseURL,
		ExpiryDays:     cfg.App.DefaultExpiryDays,
	})
	resolver := appservice.NewLinkResolver(appservice.ResolverDeps{
		Logger:         logger.Named("resolver"),
		Links:          linkRepo,
		Questionnaires: questionnaireRepo,
		LegacySurveys:  legacyRepo,
		Clients:        clientDir,
	})
	recorder := appservice.NewResponseRecorder(appservice.RecorderDeps{
		Logger:    logger.Named("recorder"),
		Resolver:  resolver,
		Responses: responseRepo,
		Identity:  identity,
		Notifier:  dispatcher,
	})

	deps := appserver.Dependencies{
		Logger:      log,
		Issuer:      issuer,
		Resolver:    resolver,
		Recorder:    recorder,
		Health:      pgCatalog,
		AdminSecret: []byte(cfg.App.AdminSecret),
		AllowOrigin: cfg.App.AllowOrigin,
	}

	if cfg.RateLimit.Enabled {
		redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully")

		limit := middleware.DefaultRateLimitConfig()
		if cfg.RateLimit.MaxRequests > 0 {
			limit.MaxRequests = cfg.RateLimit.MaxRequests
		}
		if cfg.RateLimit.Window > 0 {
			limit.Window = cfg.RateLimit.Window
		}
		deps.RateLimiter = redisClient
		deps.RateLimit = limit
	}

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, pgCatalog)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	server := appserver.New(deps)

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", addr))
		serveErr <- server.Listen(addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("Fiber server exited", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server cleanly", zap.Error(err))
	}
	dispatcher.Wait()
}

// newMailer builds the configured mail transport and a func releasing it.
func newMailer(cfg *config.Config, log *zap.Logger) (appservice.Mailer, func(), error) {
	switch cfg.Mail.Transport {
	case config.MailTransportNATS:
		conn, js, err := infraNATS.Connect(cfg.NATS)
		if err != nil {
			return nil, nil, err
		}
		if err := infraNATS.EnsureStream(js, model.MailStreamName,
			[]string{model.MailStreamSubject}, model.MailStreamMaxBytes); err != nil {
			conn.Close()
			return nil, nil, err
		}
		log.Info("Connected to NATS successfully", zap.String("stream", model.MailStreamName))
		return mailer.NewJetStream(js, model.MailStreamSubject), drain(conn, log), nil
	case config.MailTransportWebhook:
		client := &http.Client{Timeout: cfg.Mail.SendTimeout}
		return mailer.NewWebhook(client, cfg.Mail.WebhookURL, cfg.Mail.WebhookToken), func() {}, nil
	default:
		return mailer.NewLog(logger.Named("mail")), func() {}, nil
	}
}

func drain(conn *nats.Conn, log *zap.Logger) func() {
	return func() {
		if err := conn.Drain(); err != nil {
			log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
}
