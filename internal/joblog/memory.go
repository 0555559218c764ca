package joblog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trubo/mail-gateway/internal/core"
)

// Memory keeps records in-process. Used by unit tests and as a stand-in when
// no database is configured.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) upsert(jobID string) *Record {
	r, ok := m.records[jobID]
	if !ok {
		r = &Record{JobID: jobID, CreatedAt: time.Now().UTC()}
		m.records[jobID] = r
	}
	r.UpdatedAt = time.Now().UTC()
	return r
}

func (m *Memory) RecordEnqueue(_ context.Context, jobID, name, priority string, providerKeyUsed bool, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.upsert(jobID)
	r.Name = name
	r.Priority = priority
	r.ProviderKeyUsed = providerKeyUsed
	r.Payload = marshalOrNull(payload)
	if r.Status == "" {
		r.Status = StatusEnqueued
	}
	r.Events = append(r.Events, Event{Status: StatusEnqueued, At: time.Now().UTC()})
	return nil
}

func (m *Memory) RecordStatus(_ context.Context, jobID, status string, result, errVal any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.upsert(jobID)
	r.Status = status
	r.Result = marshalOrNull(result)
	r.Error = marshalOrNull(errVal)
	r.Events = append(r.Events, Event{
		Status: status,
		At:     time.Now().UTC(),
		Result: r.Result,
		Error:  r.Error,
	})
	return nil
}

func (m *Memory) Get(_ context.Context, jobID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[jobID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r
	cp.Events = append([]Event(nil), r.Events...)
	return &cp, nil
}

func (m *Memory) List(_ context.Context, status string, limit, page int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		cp.Events = append([]Event(nil), r.Events...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	start := (page - 1) * limit
	if start >= len(out) {
		return nil, nil
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (m *Memory) Events(ctx context.Context, jobID string) ([]Event, error) {
	r, err := m.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return r.Events, nil
}

func (m *Memory) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, jobID)
	return nil
}

func (m *Memory) CountByStatus(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, r := range m.records {
		if r.Status != "" {
			counts[r.Status]++
		}
	}
	return counts, nil
}
