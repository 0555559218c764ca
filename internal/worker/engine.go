// Package worker is the terminal consumer of the send queue: it delivers
// each job through its provider and reports lifecycle transitions back to
// the event log.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/metrics"
	"github.com/trubo/mail-gateway/internal/provider"
	"github.com/trubo/mail-gateway/internal/queue"
)

type Options struct {
	Concurrency int           // simultaneous sends
	QPS         float64       // sustained provider rate, shared process-wide
	Burst       int           // short spikes above QPS
	SendTimeout time.Duration // per-send ceiling
}

type Engine struct {
	Send     queue.Queue
	Provider provider.Provider
	Reporter Reporter
	Opts     Options
	Logger   *slog.Logger
}

func (e *Engine) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(e.Opts.QPS), e.Opts.Burst)
	return e.Send.Consume(ctx, func(ctx context.Context, j queue.Job) error {
		return e.sendOne(ctx, limiter, j)
	}, queue.ConsumeOptions{
		Concurrency: e.Opts.Concurrency,
		OnFailed:    e.reportTerminalFailure,
	})
}

func (e *Engine) sendOne(ctx context.Context, limiter *rate.Limiter, j queue.Job) error {
	var job core.MailJob
	if err := json.Unmarshal(j.Payload, &job); err != nil {
		return err
	}
	orig := originalID(j)

	e.Reporter.Report(ctx, orig, "active", nil, nil)

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	cctx, cancel := context.WithTimeout(ctx, e.Opts.SendTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.Provider.Send(cctx, job)
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SendTotal.WithLabelValues("error").Inc()
		e.logger().Warn("send failed", "jobId", j.ID, "attempt", j.Attempts, "err", err)
		return err
	}
	metrics.SendTotal.WithLabelValues("sent").Inc()

	e.Reporter.Report(ctx, orig, "completed", res, nil)
	e.logger().Info("sent", "jobId", j.ID, "providerId", res.ID)
	return nil
}

// reportTerminalFailure fires once the queue has exhausted retries.
func (e *Engine) reportTerminalFailure(j queue.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failure := map[string]any{"message": err.Error()}
	var perr *core.ProviderError
	if errors.As(err, &perr) {
		failure["provider"] = perr.Diagnostic
	}
	e.Reporter.Report(ctx, originalID(j), "failed", nil, failure)
	e.logger().Error("job failed", "jobId", j.ID, "attempts", j.Attempts, "err", err)
}

func originalID(j queue.Job) string {
	var job core.MailJob
	if err := json.Unmarshal(j.Payload, &job); err == nil && job.OriginalID != "" {
		return job.OriginalID
	}
	return j.ID
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
