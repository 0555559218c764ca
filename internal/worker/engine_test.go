package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/provider"
	"github.com/trubo/mail-gateway/internal/queue"
	"github.com/trubo/mail-gateway/internal/worker"
)

type report struct {
	jobID  string
	status string
	result any
	errVal any
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []report
}

func (r *recordingReporter) Report(_ context.Context, jobID, status string, result, errVal any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{jobID, status, result, errVal})
}

func (r *recordingReporter) statuses(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rep := range r.reports {
		if rep.jobID == jobID {
			out = append(out, rep.status)
		}
	}
	return out
}

type stubProvider struct {
	mu   sync.Mutex
	jobs []core.MailJob
	err  error
}

func (p *stubProvider) Send(_ context.Context, job core.MailJob) (provider.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	if p.err != nil {
		return provider.Result{}, p.err
	}
	return provider.Result{ID: "prov-1"}, nil
}

func runEngine(t *testing.T, send queue.Queue, prov provider.Provider, rep worker.Reporter) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e := &worker.Engine{
		Send:     send,
		Provider: prov,
		Reporter: rep,
		Opts:     worker.Options{Concurrency: 2, QPS: 1000, Burst: 100, SendTimeout: time.Second},
	}
	go func() { _ = e.Run(ctx) }()
	return cancel
}

func enqueueMail(t *testing.T, q queue.Queue, id string, job core.MailJob) {
	t.Helper()
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	_, err = q.EnqueueWithID(context.Background(), id, core.JobName, payload)
	require.NoError(t, err)
}

func TestEngine_CompletedReportedUnderOriginalID(t *testing.T) {
	send := queue.NewMemory(queue.Options{})
	prov := &stubProvider{}
	rep := &recordingReporter{}

	enqueueMail(t, send, "send:orig-1", core.MailJob{
		To: core.Recipients{"a@b.com"}, Subject: "s", Text: "t", OriginalID: "orig-1",
	})
	cancel := runEngine(t, send, prov, rep)
	defer cancel()

	require.Eventually(t, func() bool {
		s := rep.statuses("orig-1")
		return len(s) == 2 && s[0] == "active" && s[1] == "completed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_TerminalFailureCarriesDiagnostic(t *testing.T) {
	send := queue.NewMemory(queue.Options{MaxAttempts: 2, BackoffBase: 5 * time.Millisecond})
	prov := &stubProvider{err: &core.ProviderError{Message: "domain not verified", Diagnostic: map[string]any{"statusCode": 403}}}
	rep := &recordingReporter{}

	enqueueMail(t, send, "send:orig-2", core.MailJob{
		To: core.Recipients{"a@b.com"}, Subject: "s", Text: "t", OriginalID: "orig-2",
	})
	cancel := runEngine(t, send, prov, rep)
	defer cancel()

	require.Eventually(t, func() bool {
		s := rep.statuses("orig-2")
		return len(s) > 0 && s[len(s)-1] == "failed"
	}, 5*time.Second, 10*time.Millisecond)

	rep.mu.Lock()
	defer rep.mu.Unlock()
	last := rep.reports[len(rep.reports)-1]
	failure, ok := last.errVal.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "provider: domain not verified", failure["message"])
	require.NotNil(t, failure["provider"])
}

func TestEngine_DeliveryVariantReachesProvider(t *testing.T) {
	send := queue.NewMemory(queue.Options{})
	prov := &stubProvider{}
	rep := &recordingReporter{}

	enqueueMail(t, send, "j1", core.MailJob{
		To: core.Recipients{"a@b.com"}, Subject: "s", Text: "t",
		Delivery: core.DeliverCallerKey, ProviderKey: "re_key",
	})
	cancel := runEngine(t, send, prov, rep)
	defer cancel()

	require.Eventually(t, func() bool {
		prov.mu.Lock()
		defer prov.mu.Unlock()
		return len(prov.jobs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	prov.mu.Lock()
	defer prov.mu.Unlock()
	require.Equal(t, core.DeliverCallerKey, prov.jobs[0].Delivery)
	require.Equal(t, "re_key", prov.jobs[0].ProviderKey)
}
