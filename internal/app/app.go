// Package app wires configuration into the service graph shared by the
// binaries under cmd/.
package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/audit"
	"github.com/Jeffreasy/KoruFormsService/internal/auth"
	"github.com/Jeffreasy/KoruFormsService/internal/broker"
	"github.com/Jeffreasy/KoruFormsService/internal/config"
	"github.com/Jeffreasy/KoruFormsService/internal/crypto"
	"github.com/Jeffreasy/KoruFormsService/internal/forms"
	"github.com/Jeffreasy/KoruFormsService/internal/lock"
	"github.com/Jeffreasy/KoruFormsService/internal/mailer"
	"github.com/Jeffreasy/KoruFormsService/internal/reconcile"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
	"github.com/Jeffreasy/KoruFormsService/internal/submissions"
	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the wired services. Broker, Reconciler and Scheduler are nil
// when no identity broker is configured.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Forms       *forms.Service
	Submissions *submissions.Pipeline
	Gateway     *auth.Gateway
	Tokens      *auth.JWTProvider
	Broker      *broker.Client
	Reconciler  *reconcile.Reconciler
	Scheduler   *reconcile.Scheduler

	closers []func()
}

// InitSentry initialises error reporting when dsn is set. The returned func
// flushes pending events.
func InitSentry(dsn, env string, logger *slog.Logger) func() {
	if dsn == "" {
		logger.Warn("sentry_dsn_missing", "details", "skipping_init")
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		TracesSampleRate: 0.2,
		Environment:      env,
	})
	if err != nil {
		logger.Error("sentry_init_failed", "error", err)
		return func() {}
	}
	logger.Info("sentry_initialized")
	return func() { sentry.Flush(2 * time.Second) }
}

// New connects to the database and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := storage.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	logger.Info("database_connected")

	formStore := storage.NewFormStore(pool)
	subStore := storage.NewSubmissionStore(pool)
	userStore := storage.NewUserStore(pool)
	auditLog := audit.NewPostgresLogger(pool, logger)

	if cfg.BrokerConfigured() {
		a.Broker = broker.NewClient(broker.Config{
			BaseURL:   cfg.Broker.BaseURL,
			AppID:     cfg.Broker.AppID,
			AppSecret: cfg.Broker.AppSecret,
			Timeout:   cfg.Broker.Timeout,
		})
	}

	// The service and reconciler take interfaces; a nil *broker.Client must
	// not be passed through them.
	var directory forms.WebsiteDirectory
	if a.Broker != nil {
		directory = a.Broker
	}
	a.Forms = forms.NewService(formStore, directory, auditLog, logger, forms.WithCreateRecheck(cfg.Auth.CreateRecheck))

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Submissions = submissions.NewPipeline(formStore, subStore, dispatcher, submissions.Config{
		HoneypotField: cfg.Submissions.HoneypotField,
		Logger:        logger,
	})

	keyPEM := cfg.Auth.JWTPrivateKey
	if keyPEM == "" {
		if cfg.IsProduction() {
			a.Close()
			return nil, errors.New("jwt private key missing")
		}
		logger.Warn("jwt_private_key_missing", "details", "using_ephemeral_dev_key")
		if keyPEM, err = ephemeralKey(); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Tokens, err = auth.NewJWTProvider(keyPEM, cfg.Auth.Issuer, cfg.Auth.SessionTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("jwt provider: %w", err)
	}

	opts := auth.StrategyOptions{
		MockEnabled:      cfg.Auth.MockMode,
		MockWebsiteID:    cfg.Auth.MockWebsiteID,
		MockRole:         cfg.Auth.MockRole,
		BrokerConfigured: a.Broker != nil,
		Users:            userStore,
		Hasher:           auth.NewBcryptHasher(auth.DefaultBcryptCost),
		Logger:           logger,
	}
	if a.Broker != nil {
		opts.Broker = a.Broker
	}
	if cfg.Auth.TokenEncryptKey != "" {
		sealer, err := crypto.NewSealer(cfg.Auth.TokenEncryptKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("token sealer: %w", err)
		}
		opts.Sealer = sealer
	}
	strategy := auth.SelectStrategy(opts)
	a.Gateway = auth.NewGateway(strategy, a.Tokens, auditLog, logger)
	logger.Info("login_mode_selected", "mode", strategy.Name())

	if a.Broker != nil {
		locker, err := buildLocker(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		if rl, ok := locker.(*lock.Redis); ok {
			a.closers = append(a.closers, func() { _ = rl.Close() })
		}
		a.Reconciler = reconcile.New(a.Forms, a.Broker, cfg.Reconcile.Concurrency, logger)
		a.Scheduler = reconcile.NewScheduler(a.Reconciler, locker, reconcile.SchedulerConfig{
			Interval:   cfg.Reconcile.Interval,
			RunOnStart: cfg.Reconcile.RunOnStart,
			LockTTL:    cfg.Reconcile.LockTTL,
		}, logger)
	} else {
		logger.Warn("reconcile_disabled", "details", "broker_not_configured")
	}

	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildDispatcher(cfg *config.Config, logger *slog.Logger) (*mailer.Dispatcher, error) {
	var primary, secondary mailer.Transport

	if cfg.SMTPConfigured() {
		t, err := mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:            cfg.Mail.SMTPHost,
			Port:            cfg.Mail.SMTPPort,
			Username:        cfg.Mail.SMTPUser,
			Password:        cfg.Mail.SMTPPass,
			TLSMode:         cfg.Mail.SMTPTLS,
			Timeout:         cfg.Mail.AttemptTimeout,
			SkipEgressCheck: cfg.Mail.SkipEgressCheck,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("smtp transport: %w", err)
		}
		primary = t
	} else {
		logger.Warn("smtp_not_configured", "details", "mail is logged, not sent")
		primary = &mailer.LogTransport{Logger: logger}
	}

	if cfg.APIMailConfigured() {
		t, err := mailer.NewHTTPAPITransport(mailer.HTTPAPIConfig{
			Endpoint:        cfg.Mail.APIURL,
			APIKey:          cfg.Mail.APIKey,
			Timeout:         cfg.Mail.AttemptTimeout,
			SkipEgressCheck: cfg.Mail.SkipEgressCheck,
		})
		if err != nil {
			return nil, fmt.Errorf("mail api transport: %w", err)
		}
		secondary = t
	}

	return mailer.NewDispatcher(mailer.DispatcherConfig{
		From:           cfg.Mail.From,
		Primary:        primary,
		Secondary:      secondary,
		AttemptTimeout: cfg.Mail.AttemptTimeout,
		Logger:         logger,
	}), nil
}

func buildLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.Reconcile.LockBackend != "redis" {
		return lock.NewMemory(), nil
	}
	l, err := lock.NewRedis(ctx, lock.RedisConfig{
		Addr: cfg.Reconcile.RedisAddr,
		DB:   cfg.Reconcile.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func ephemeralKey() (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", fmt.Errorf("generate dev key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})), nil
}
