package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/joblog"
	"github.com/trubo/mail-gateway/internal/metrics"
	"github.com/trubo/mail-gateway/internal/queue"
)

const (
	defaultWindow       = 100
	defaultPollInterval = 3 * time.Second
	defaultPingInterval = 15 * time.Second
)

// Update is one edge-triggered state change pushed to a stream client.
type Update struct {
	JobID  string          `json:"jobId"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Reconciler periodically folds the transient queue state and the durable
// event log into a per-client stream of status updates. Queue state wins for
// jobs still visible there; jobs that have left the queues (completed ones
// are removed on success) fall back to the log.
type Reconciler struct {
	Sources []queue.Queue
	Log     joblog.Store

	PollInterval time.Duration
	PingInterval time.Duration
	Window       int
	Logger       *slog.Logger
}

// Serve streams updates over SSE until the client disconnects. ids narrows
// the stream to those job ids; empty means every job in the queue window.
func (rc *Reconciler) Serve(w http.ResponseWriter, req *http.Request, ids []string) error {
	snk, err := newSink(w)
	if err != nil {
		return err
	}
	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	filter := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		filter[id] = struct{}{}
	}
	last := make(map[string]string)
	ctx := req.Context()

	emit := func(u Update) error { return snk.send("update", u) }
	if err := rc.pollOnce(ctx, filter, last, emit); err != nil {
		if sendErr := snk.send("error", map[string]string{"message": err.Error()}); sendErr != nil {
			return sendErr
		}
	}

	pollEvery := rc.PollInterval
	if pollEvery <= 0 {
		pollEvery = defaultPollInterval
	}
	pingEvery := rc.PingInterval
	if pingEvery <= 0 {
		pingEvery = defaultPingInterval
	}
	poll := time.NewTicker(pollEvery)
	defer poll.Stop()
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := snk.send("ping", map[string]int64{"t": time.Now().UnixMilli()}); err != nil {
				return nil
			}
		case <-poll.C:
			if err := rc.pollOnce(ctx, filter, last, emit); err != nil {
				rc.logger().Warn("stream poll failed", "error", err)
				if sendErr := snk.send("error", map[string]string{"message": err.Error()}); sendErr != nil {
					return nil
				}
			}
		}
	}
}

// pollOnce walks the queue windows and emits an update for every job whose
// status changed since the previous poll. Changes observed in the queues are
// mirrored to the log best effort; ids the queues no longer know are looked
// up in the log directly.
func (rc *Reconciler) pollOnce(ctx context.Context, filter map[string]struct{}, last map[string]string, emit func(Update) error) error {
	window := rc.Window
	if window <= 0 {
		window = defaultWindow
	}
	states := []queue.Status{queue.StatusWaiting, queue.StatusDelayed, queue.StatusActive, queue.StatusFailed}

	seen := make(map[string]struct{})
	for _, src := range rc.Sources {
		jobs, err := src.Jobs(ctx, states, 0, window-1)
		if err != nil {
			return err
		}
		for _, j := range jobs {
			id := originalID(j)
			seen[id] = struct{}{}
			if len(filter) > 0 {
				if _, ok := filter[id]; !ok {
					continue
				}
			}
			status := logStatus(j.Status)
			if last[id] == status {
				continue
			}
			last[id] = status
			u := Update{JobID: id, Status: status}
			var errVal any
			if j.Error != "" {
				u.Error = marshal(map[string]string{"message": j.Error})
				errVal = map[string]string{"message": j.Error}
			}
			if rc.Log != nil {
				if err := rc.Log.RecordStatus(ctx, id, status, nil, errVal); err != nil {
					rc.logger().Warn("stream status mirror failed", "job_id", id, "error", err)
				}
			}
			if err := emit(u); err != nil {
				return err
			}
		}
	}

	// Requested ids absent from every queue window have either completed or
	// been pruned; the log is the only place left that knows about them.
	for id := range filter {
		if rc.Log == nil {
			break
		}
		if _, ok := seen[id]; ok {
			continue
		}
		rec, err := rc.Log.Get(ctx, id)
		if err != nil {
			continue
		}
		if last[id] == rec.Status {
			continue
		}
		last[id] = rec.Status
		if err := emit(Update{JobID: id, Status: rec.Status, Result: rec.Result, Error: rec.Error}); err != nil {
			return err
		}
	}
	return nil
}

func (rc *Reconciler) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}

// originalID resolves the id clients know a job by. Forwarded copies carry
// the source id in their payload.
func originalID(j queue.Job) string {
	var payload core.MailJob
	if err := json.Unmarshal(j.Payload, &payload); err == nil && payload.OriginalID != "" {
		return payload.OriginalID
	}
	return j.ID
}

func logStatus(s queue.Status) string {
	switch s {
	case queue.StatusWaiting, queue.StatusDelayed:
		return joblog.StatusEnqueued
	case queue.StatusActive:
		return joblog.StatusActive
	case queue.StatusFailed:
		return joblog.StatusFailed
	default:
		return string(s)
	}
}

func marshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
