package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/metrics"
	"github.com/trubo/mail-gateway/internal/queue"
)

// DerivedID maps a priority-queue job id onto its send-queue id. The mapping
// is deterministic so duplicate deliveries of the same source job collapse
// onto one downstream job.
func DerivedID(sourceID string) string { return "send:" + sourceID }

// Forwarder drains one priority queue into the unified send queue. Payloads
// pass through unmodified except for OriginalID, which records the source
// job id. A forwarding failure is left to the source queue's own backoff.
type Forwarder struct {
	Priority core.Priority
	Source   queue.Queue
	Send     queue.Queue
	Logger   *slog.Logger
}

func (f *Forwarder) Run(ctx context.Context) error {
	return f.Source.Consume(ctx, f.forward, queue.ConsumeOptions{Concurrency: 1})
}

func (f *Forwarder) forward(ctx context.Context, j queue.Job) error {
	var job core.MailJob
	if err := json.Unmarshal(j.Payload, &job); err != nil {
		return err
	}
	job.OriginalID = j.ID
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if _, err := f.Send.EnqueueWithID(ctx, DerivedID(j.ID), j.Name, payload); err != nil {
		return err
	}
	metrics.ForwardTotal.WithLabelValues(string(f.Priority)).Inc()
	f.logger().Debug("forwarded", "sourceId", j.ID, "sendId", DerivedID(j.ID))
	return nil
}

func (f *Forwarder) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
