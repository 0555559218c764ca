// Package joblog is the durable event log: one record per job id with an
// append-only sequence of lifecycle events. It is authoritative for history
// but best-effort for liveness: pipeline writes to it are mirrors of queue
// state, not transactional with it.
package joblog

import (
	"context"
	"encoding/json"
	"time"
)

const (
	StatusEnqueued  = "enqueued"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Event struct {
	Status string          `json:"status"`
	At     time.Time       `json:"at"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type Record struct {
	JobID           string          `json:"jobId"`
	Name            string          `json:"name,omitempty"`
	Priority        string          `json:"priority,omitempty"`
	ProviderKeyUsed bool            `json:"providerKeyUsed"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Status          string          `json:"status,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           json.RawMessage `json:"error,omitempty"`
	Events          []Event         `json:"events"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type Store interface {
	// RecordEnqueue upserts the record for a freshly admitted job and
	// appends an "enqueued" event. The payload must already be redacted.
	RecordEnqueue(ctx context.Context, jobID, name, priority string, providerKeyUsed bool, payload any) error
	// RecordStatus upserts status/result/error and appends a matching event.
	RecordStatus(ctx context.Context, jobID, status string, result, errVal any) error
	Get(ctx context.Context, jobID string) (*Record, error)
	List(ctx context.Context, status string, limit, page int) ([]Record, error)
	Events(ctx context.Context, jobID string) ([]Event, error)
	Delete(ctx context.Context, jobID string) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}

func marshalOrNull(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
