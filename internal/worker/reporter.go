package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/trubo/mail-gateway/internal/joblog"
)

// Reporter records a job's lifecycle transition keyed by its original id.
// All reports are best-effort: a lost status write never blocks delivery.
type Reporter interface {
	Report(ctx context.Context, jobID, status string, result, errVal any)
}

// StoreReporter writes straight into the event log.
type StoreReporter struct {
	Log    joblog.Store
	Logger *slog.Logger
}

func (r *StoreReporter) Report(ctx context.Context, jobID, status string, result, errVal any) {
	if err := r.Log.RecordStatus(ctx, jobID, status, result, errVal); err != nil && r.Logger != nil {
		r.Logger.Warn("status write failed", "jobId", jobID, "status", status, "err", err)
	}
}

// APIReporter posts status out-of-band to the API's admin endpoint, for
// worker processes that have no database of their own.
type APIReporter struct {
	Base   string // e.g. http://localhost:8080
	Token  string // optional bearer token for a guarded admin surface
	Client *http.Client
	Logger *slog.Logger
}

func (r *APIReporter) Report(ctx context.Context, jobID, status string, result, errVal any) {
	body, err := json.Marshal(map[string]any{"status": status, "result": result, "error": errVal})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.Base+"/admin/jobs/"+jobID+"/status", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("status post failed", "jobId", jobID, "status", status, "err", err)
		}
		return
	}
	resp.Body.Close()
}
