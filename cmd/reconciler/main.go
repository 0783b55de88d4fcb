package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jeffreasy/KoruFormsService/internal/app"
	"github.com/Jeffreasy/KoruFormsService/internal/config"
	"github.com/Jeffreasy/KoruFormsService/pkg/logger"
	"github.com/joho/godotenv"
)

// The reconciler runs website reconciliation on its own schedule, for
// deployments that keep it out of the API process.
func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Setup("production", "error").Error("config_invalid", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.App.Env, cfg.App.LogLevel)
	flush := app.InitSentry(os.Getenv("SENTRY_DSN"), cfg.App.Env, log)
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup_failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Scheduler == nil {
		log.Error("reconciler_unavailable", "details", "broker credentials are required")
		return
	}

	log.Info("reconciler_started", "interval", cfg.Reconcile.Interval, "lock", cfg.Reconcile.LockBackend)
	a.Scheduler.Run(ctx)
	log.Info("reconciler_stopped")
}
