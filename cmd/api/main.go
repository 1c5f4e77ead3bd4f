// Command api runs the account service HTTP API.
//
// @title                       Account Service API
// @version                     1.0
// @description                 User registration, email verification, login and password reset.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/api"
	"github.com/jesi-ai/account-service/internal/api/handler"
	"github.com/jesi-ai/account-service/internal/core/ports"
	"github.com/jesi-ai/account-service/internal/core/service"
	"github.com/jesi-ai/account-service/internal/infrastructure/db/memory"
	"github.com/jesi-ai/account-service/internal/infrastructure/db/mongo"
	"github.com/jesi-ai/account-service/internal/infrastructure/db/postgres"
	"github.com/jesi-ai/account-service/internal/infrastructure/db/redis"
	"github.com/jesi-ai/account-service/internal/infrastructure/mail"
	"github.com/jesi-ai/account-service/internal/infrastructure/queue"
	"github.com/jesi-ai/account-service/internal/infrastructure/security"
	"github.com/jesi-ai/account-service/internal/pkg/config"
	"github.com/jesi-ai/account-service/pkg/logger"
)

const serviceName = "account-service"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	checks := map[string]handler.Check{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// --- Store ---
	repo, err := openStore(ctx, cfg, checks, &closers)
	if err != nil {
		return err
	}

	// --- Security ---
	tokens, err := security.NewJWTIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	hasher := security.NewBcryptHasher(cfg.Auth.BcryptCost)

	// --- Mail ---
	var mailer mail.Mailer = mail.NewLogMailer(logger.Component("mail"))
	if cfg.SMTP.Enabled {
		smtpMailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
			Enabled:  true,
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			UseTLS:   cfg.SMTP.TLS,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			return err
		}
		mailer = smtpMailer
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	dispatcher := queue.NewDispatcher(queue.Config{
		Workers:         cfg.Mail.Workers,
		Buffer:          cfg.Mail.Buffer,
		DeliveryTimeout: cfg.SMTP.Timeout * 3,
	}, mail.NewDeliverer(mailer, cfg.Auth.FrontendURL), logger.Component("dispatcher"))
	dispatcher.Start(workerCtx)

	var notifier ports.Notifier = dispatcher
	consumerDone := make(chan struct{})
	if cfg.Mail.Queue == config.MailQueueRedis {
		rdb, err := redis.Connect(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		outbox := redis.NewMailQueue(rdb, logger.Component("outbox"))
		notifier = outbox
		go func() {
			defer close(consumerDone)
			_ = outbox.Consume(workerCtx, dispatcher.Enqueue)
		}()
	} else {
		close(consumerDone)
	}

	// --- Service & HTTP ---
	authService := service.NewAuthService(repo, hasher, tokens, notifier, logger.Component("auth"), service.Options{
		TTLs: service.TokenTTLs{
			Access:       cfg.Auth.AccessTokenTTL,
			Verification: cfg.Auth.VerificationTokenTTL,
			Reset:        cfg.Auth.ResetTokenTTL,
		},
		RevealVerificationStatus: cfg.Auth.RevealVerificationStatus,
	})

	e := api.NewRouter(api.Deps{
		AuthService: authService,
		Tokens:      tokens,
		Checks:      checks,
		Log:         logger.Component("http"),
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store.Backend).Str("mail_queue", cfg.Mail.Queue).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	cancelWorkers()
	dispatcher.Wait()
	<-consumerDone
	return nil
}

// openStore connects the configured user store, registers its readiness
// check and queues its cleanup.
func openStore(ctx context.Context, cfg *config.Config, checks map[string]handler.Check, closers *[]func()) (ports.UserRepository, error) {
	log := logger.Get()

	switch cfg.Store.Backend {
	case config.StoreMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, Timeout: cfg.Store.Timeout})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = client.Disconnect(context.Background()) })
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

		repo := mongo.NewUserRepository(db, cfg.Store.Timeout)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.StoreMemory:
		log.Warn().Msg("using in-memory user store, data is lost on restart")
		return memory.NewUserRepository(), nil

	default:
		db, err := postgres.Connect(ctx, postgres.Config{
			DSN:          cfg.Postgres.URL,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			Timeout:      cfg.Store.Timeout,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = db.Close() })
		checks["postgres"] = db.PingContext

		if cfg.Postgres.Migrate {
			if err := postgres.RunMigrations(ctx, db); err != nil {
				return nil, err
			}
			log.Info().Msg("database migrations applied")
		}
		return postgres.NewUserRepository(db, cfg.Store.Timeout), nil
	}
}
