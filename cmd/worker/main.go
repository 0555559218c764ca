package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/trubo/mail-gateway/internal/config"
	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/db"
	"github.com/trubo/mail-gateway/internal/dispatch"
	"github.com/trubo/mail-gateway/internal/joblog"
	"github.com/trubo/mail-gateway/internal/provider"
	"github.com/trubo/mail-gateway/internal/queue"
	"github.com/trubo/mail-gateway/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	// Status writes go through the API's admin endpoint when one is
	// configured; otherwise straight to the store.
	var reporter worker.Reporter
	if cfg.APIBaseURL != "" {
		reporter = &worker.APIReporter{Base: cfg.APIBaseURL, Token: cfg.AdminToken, Logger: logger}
	} else {
		pool, err := db.Connect(rootCtx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		reporter = &worker.StoreReporter{Log: &joblog.Postgres{DB: pool}, Logger: logger}
	}

	var prov provider.Provider = &provider.Selector{
		API: &provider.API{Base: cfg.ProviderAPIBase, Key: cfg.ProviderKey, From: cfg.SenderMail},
		SMTP: provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPAppPassword,
			From:     cfg.SMTPFrom,
		},
	}
	if cfg.ProviderKey == "" && !cfg.SMTPConfigured() {
		logger.Warn("no provider key or smtp credentials; sends go to the dummy provider")
		prov = provider.NewDummy()
	}

	engine := &worker.Engine{
		Send:     queues.Send,
		Provider: prov,
		Reporter: reporter,
		Opts: worker.Options{
			Concurrency: cfg.Concurrency,
			QPS:         cfg.SendQPS,
			Burst:       cfg.SendBurst,
			SendTimeout: cfg.SendTimeout,
		},
		Logger: logger,
	}

	go serveHealthz()

	g, gctx := errgroup.WithContext(rootCtx)
	for _, f := range []*dispatch.Forwarder{
		{Priority: core.PriorityHigh, Source: queues.High, Send: queues.Send, Logger: logger},
		{Priority: core.PriorityMedium, Source: queues.Medium, Send: queues.Send, Logger: logger},
		{Priority: core.PriorityLow, Source: queues.Low, Send: queues.Send, Logger: logger},
	} {
		f := f
		g.Go(func() error { return f.Run(gctx) })
	}
	g.Go(func() error { return engine.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func serveHealthz() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	addr := os.Getenv("HEALTH_ADDR")
	if addr == "" {
		addr = "0.0.0.0:9090"
	}
	_ = http.ListenAndServe(addr, mux)
}
