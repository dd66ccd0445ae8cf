// Command worker runs the reminder dispatch loop.
//
// It shares the store and the dispatch implementation with the server; only
// the driver differs. With -once (or WORKER_ONCE=1) it performs a single
// dispatch pass and exits, which suits cron-style deployments. Otherwise it
// dispatches on the configured interval until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-commitlog-backend/internal/config"
	httpapi "github.com/tbourn/go-commitlog-backend/internal/http"
	"github.com/tbourn/go-commitlog-backend/internal/notify"
	"github.com/tbourn/go-commitlog-backend/internal/observability"
	"github.com/tbourn/go-commitlog-backend/internal/repo"
	"github.com/tbourn/go-commitlog-backend/internal/sysutil"
	"github.com/tbourn/go-commitlog-backend/internal/worker"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	once := flag.Bool("once", false, "run a single dispatch pass and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	remSvc := httpapi.NewReminderService(db, notify.NewWhatsAppMock(), cfg)
	w := worker.New(remSvc, cfg.WorkerInterval)

	if *once || sysutil.IsTruthy(os.Getenv("WORKER_ONCE")) {
		n, err := w.RunOnce(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("dispatch pass failed")
		}
		log.Info().Int("dispatched", n).Msg("single pass done")
		return
	}

	w.Run(ctx)
}
