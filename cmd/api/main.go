package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/api"
	"github.com/Jeffreasy/KoruFormsService/internal/app"
	"github.com/Jeffreasy/KoruFormsService/internal/config"
	"github.com/Jeffreasy/KoruFormsService/internal/metrics"
	"github.com/Jeffreasy/KoruFormsService/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	// 0. Load Configuration (Dev/Local)
	// Missing files are fine; production relies on system env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Setup("production", "error").Error("config_invalid", "error", err)
		os.Exit(1)
	}

	// 1. Setup Global Logger
	log := logger.Setup(cfg.App.Env, cfg.App.LogLevel)
	log.Info("application_startup", "env", cfg.App.Env)

	// 2. Setup Sentry
	flush := app.InitSentry(os.Getenv("SENTRY_DSN"), cfg.App.Env, log)
	defer flush()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Services
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup_failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := metrics.Register(nil, a.Pool); err != nil {
		log.Error("metrics_register_failed", "error", err)
	}

	deps := api.Deps{
		Forms:            a.Forms,
		Submissions:      a.Submissions,
		Gateway:          a.Gateway,
		Tokens:           a.Tokens,
		Pool:             a.Pool,
		Logger:           log,
		RateLimitRPS:     cfg.RateLimit.RPS,
		RateLimitBurst:   cfg.RateLimit.Burst,
		DashboardOrigins: cfg.CORS.DashboardOrigins,
		MetricsToken:     cfg.Auth.MetricsToken,
	}
	if a.Scheduler != nil {
		deps.Reconciler = a.Scheduler
		if cfg.Reconcile.InProcess {
			go a.Scheduler.Run(ctx)
		}
	}

	// 4. Setup HTTP Server
	server := api.NewServer(ctx, deps)
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Submissions wait for up to two mail attempts.
		WriteTimeout: 2*cfg.Mail.AttemptTimeout + 10*time.Second,
	}

	// 5. Start Server with Graceful Shutdown
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		stop()
		a.Close()
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}
		log.Info("server_shutdown_complete")
	}
}
