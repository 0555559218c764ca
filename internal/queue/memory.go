package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process queue with the same retry semantics as the Redis
// backend. It backs unit tests and single-node development.
type Memory struct {
	opts Options

	mu      sync.Mutex
	jobs    map[string]*Job
	wait    []string
	delayed map[string]time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:    opts.withDefaults(),
		jobs:    make(map[string]*Job),
		delayed: make(map[string]time.Time),
	}
}

func (m *Memory) Enqueue(ctx context.Context, name string, payload []byte) (string, error) {
	return m.EnqueueWithID(ctx, uuid.NewString(), name, payload)
}

func (m *Memory) EnqueueWithID(_ context.Context, id, name string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; ok {
		return id, nil
	}
	m.jobs[id] = &Job{ID: id, Name: name, Payload: payload, Status: StatusWaiting, Timestamp: time.Now()}
	m.wait = append(m.wait, id)
	return id, nil
}

func (m *Memory) Jobs(_ context.Context, states []Status, start, end int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[Status]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []Job
	for _, j := range m.jobs {
		if want[j.Status] {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Timestamp.After(out[k].Timestamp) })
	if start >= len(out) {
		return nil, nil
	}
	if end >= len(out) {
		end = len(out) - 1
	}
	return out[start : end+1], nil
}

func (m *Memory) Job(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrUnknownJob
	}
	return *j, nil
}

func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	delete(m.delayed, id)
	for i, w := range m.wait {
		if w == id {
			m.wait = append(m.wait[:i], m.wait[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Counts(_ context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[Status]int{
		StatusWaiting: 0, StatusActive: 0, StatusCompleted: 0,
		StatusFailed: 0, StatusDelayed: 0,
	}
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *Memory) Consume(ctx context.Context, h Handler, opts ConsumeOptions) error {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	// Fixed-size worker pool fed by a claim loop.
	work := make(chan Job)
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-work:
					m.finish(j, h(ctx, j), opts)
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		j, ok := m.claim()
		if !ok {
			select {
			case <-ctx.Done():
				wg.Wait()
				return ctx.Err()
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case work <- j:
		}
	}
}

// claim promotes due delayed jobs, then pops the queue head and marks it
// active with one more attempt.
func (m *Memory) claim() (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, readyAt := range m.delayed {
		if !readyAt.After(now) {
			delete(m.delayed, id)
			if j, ok := m.jobs[id]; ok {
				j.Status = StatusWaiting
				m.wait = append(m.wait, id)
			}
		}
	}

	for len(m.wait) > 0 {
		id := m.wait[0]
		m.wait = m.wait[1:]
		j, ok := m.jobs[id]
		if !ok {
			continue // removed while waiting
		}
		j.Status = StatusActive
		j.Attempts++
		return *j, true
	}
	return Job{}, false
}

func (m *Memory) finish(j Job, err error, opts ConsumeOptions) {
	m.mu.Lock()
	cur, ok := m.jobs[j.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err == nil {
		// Completed jobs leave transient state; the event log keeps history.
		delete(m.jobs, j.ID)
		m.mu.Unlock()
		return
	}
	if cur.Attempts < m.opts.MaxAttempts {
		cur.Status = StatusDelayed
		m.delayed[j.ID] = time.Now().Add(m.opts.backoff(cur.Attempts))
		m.mu.Unlock()
		return
	}
	cur.Status = StatusFailed
	cur.Error = err.Error()
	terminal := *cur
	m.mu.Unlock()
	if opts.OnFailed != nil {
		opts.OnFailed(terminal, err)
	}
}
