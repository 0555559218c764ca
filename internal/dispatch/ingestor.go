// Package dispatch admits outgoing-message batches into the priority queues
// and forwards them into the unified send queue.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/joblog"
	"github.com/trubo/mail-gateway/internal/metrics"
	"github.com/trubo/mail-gateway/internal/queue"
)

// Queues bundles the three priority intakes and the unified send queue.
type Queues struct {
	High   queue.Queue
	Medium queue.Queue
	Low    queue.Queue
	Send   queue.Queue
}

func (q Queues) ByPriority(p core.Priority) queue.Queue {
	switch p {
	case core.PriorityHigh:
		return q.High
	case core.PriorityLow:
		return q.Low
	default:
		return q.Medium
	}
}

type Enqueued struct {
	Index int    `json:"index"`
	JobID string `json:"jobId"`
}

type Ingestor struct {
	Queues Queues
	Log    joblog.Store

	// Quota is the per-batch allowance of items that ride the system's
	// shared provider key. Items beyond it are silently dropped.
	Quota int
	// SMTPConfigured steers the delivery variant for items without a
	// caller key when process-wide SMTP credentials exist.
	SMTPConfigured bool

	Logger *slog.Logger
}

// EnqueueBatch validates the whole batch (all-or-nothing), applies the
// shared-key quota per item, enqueues admitted items into their priority
// queue and mirrors each enqueue into the event log. The log write is
// best-effort: the queue is authoritative for delivery, the log only for
// history.
func (in *Ingestor) EnqueueBatch(ctx context.Context, reqs []core.MailRequest) ([]Enqueued, error) {
	if verr := core.ValidateBatch(reqs); verr != nil {
		return nil, verr
	}

	remaining := in.Quota
	results := make([]Enqueued, 0, len(reqs))
	for i, r := range reqs {
		if r.ProviderKey == "" {
			if remaining <= 0 {
				metrics.EnqueueTotal.WithLabelValues("dropped").Inc()
				continue
			}
			remaining--
		}
		job := in.buildJob(r)
		id, err := in.EnqueueJob(ctx, job)
		if err != nil {
			metrics.EnqueueTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.EnqueueTotal.WithLabelValues("ok").Inc()
		results = append(results, Enqueued{Index: i, JobID: id})
	}
	return results, nil
}

// EnqueueJob publishes one job to its priority queue and mirrors the enqueue
// into the event log with credentials stripped.
func (in *Ingestor) EnqueueJob(ctx context.Context, job core.MailJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	id, err := in.Queues.ByPriority(job.Priority).Enqueue(ctx, core.JobName, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if err := in.Log.RecordEnqueue(ctx, id, core.JobName, string(job.Priority), job.ProviderKey != "", job.Redacted()); err != nil {
		in.logger().Warn("event log enqueue mirror failed", "jobId", id, "err", err)
	}
	in.logger().Info("enqueued", "jobId", id, "priority", job.Priority)
	return id, nil
}

func (in *Ingestor) buildJob(r core.MailRequest) core.MailJob {
	priority, _ := core.ParsePriority(r.Priority)
	job := core.MailJob{
		To:              r.To,
		Subject:         r.Subject,
		HTML:            r.HTML,
		Text:            r.Text,
		Priority:        priority,
		ProviderKey:     r.ProviderKey,
		Attachments:     r.Attachments,
		SMTPUser:        r.SMTPUser,
		SMTPAppPassword: r.SMTPAppPassword,
		SMTPFrom:        r.SMTPFrom,
	}
	// The variant is fixed here, once; the worker never re-derives it.
	switch {
	case r.ProviderKey != "":
		job.Delivery = core.DeliverCallerKey
	case r.SMTPUser != "" || r.SMTPAppPassword != "" || in.SMTPConfigured:
		job.Delivery = core.DeliverSMTP
	default:
		job.Delivery = core.DeliverShared
	}
	return job
}

func (in *Ingestor) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}
