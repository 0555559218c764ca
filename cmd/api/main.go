package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trubo/mail-gateway/internal/auth"
	"github.com/trubo/mail-gateway/internal/config"
	"github.com/trubo/mail-gateway/internal/db"
	"github.com/trubo/mail-gateway/internal/dispatch"
	httpapi "github.com/trubo/mail-gateway/internal/http"
	"github.com/trubo/mail-gateway/internal/joblog"
	"github.com/trubo/mail-gateway/internal/metrics"
	"github.com/trubo/mail-gateway/internal/queue"
	"github.com/trubo/mail-gateway/internal/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.Connect(rootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(rootCtx, pool); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	go metrics.NewPGXPoolStats(pool).Start(15*time.Second, rootCtx.Done())

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("redis url invalid", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(rootCtx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}

	qopts := queue.Options{MaxAttempts: cfg.MaxAttempts, BackoffBase: cfg.BackoffBase}
	queues := dispatch.Queues{
		High:   queue.NewRedis(rdb, "mail-high", qopts),
		Medium: queue.NewRedis(rdb, "mail-medium", qopts),
		Low:    queue.NewRedis(rdb, "mail-low", qopts),
		Send:   queue.NewRedis(rdb, "mail-send", qopts),
	}

	log := &joblog.Postgres{DB: pool}
	ingest := &dispatch.Ingestor{
		Queues:         queues,
		Log:            log,
		Quota:          cfg.DefaultKeyQuota,
		SMTPConfigured: cfg.SMTPConfigured(),
		Logger:         logger,
	}

	authStore := &auth.PostgresStore{DB: pool}
	authSvc := &auth.Service{
		Store:          authStore,
		Codes:          auth.NewCodes(authStore, cfg.CodeTTL),
		Mailer:         ingest,
		Secret:         []byte(cfg.AuthSecret),
		SMTPConfigured: cfg.SMTPConfigured(),
	}

	srv := &httpapi.Server{
		Ingest: ingest,
		Queues: queues,
		Log:    log,
		Auth:   authSvc,
		Stream: &stream.Reconciler{
			Sources:      []queue.Queue{queues.High, queues.Medium, queues.Low, queues.Send},
			Log:          log,
			PollInterval: cfg.PollInterval,
			PingInterval: cfg.PingInterval,
			Logger:       logger,
		},
		CORSOrigins: cfg.CORSOrigins,
		GuardAdmin:  cfg.AdminToken != "" || os.Getenv("GUARD_ADMIN") == "true",
		Secret:      []byte(cfg.AuthSecret),
		Pool:        pool,
		Redis:       rdb,
		Logger:      logger,
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: /jobs/stream holds its connection open.
	}

	go func() {
		logger.Info("http listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
			cancel()
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
