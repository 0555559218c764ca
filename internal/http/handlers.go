package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/dispatch"
	"github.com/trubo/mail-gateway/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// postMessages accepts a batch of outgoing messages, a bare JSON array or
// {"messages":[...]}.
func (s *Server) postMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, core.NewValidationError(map[string]string{"body": "unreadable body"}))
		return
	}
	var reqs []core.MailRequest
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &reqs)
	} else {
		var wrapper struct {
			Messages []core.MailRequest `json:"messages"`
		}
		err = json.Unmarshal(trimmed, &wrapper)
		reqs = wrapper.Messages
	}
	if err != nil {
		writeErr(w, core.NewValidationError(map[string]string{"body": "invalid json"}))
		return
	}
	jobs, err := s.Ingest.EnqueueBatch(r.Context(), reqs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "jobs": jobs})
}

type jobView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    queue.Status  `json:"status"`
	Attempts  int           `json:"attempts"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
	Payload   *core.MailJob `json:"payload,omitempty"`
}

func viewOf(j queue.Job, withPayload bool) jobView {
	v := jobView{ID: j.ID, Name: j.Name, Status: j.Status, Attempts: j.Attempts, Timestamp: j.Timestamp, Error: j.Error}
	var payload core.MailJob
	if err := json.Unmarshal(j.Payload, &payload); err == nil {
		if payload.OriginalID != "" {
			v.ID = payload.OriginalID
		}
		if withPayload {
			redacted := payload.Redacted()
			v.Payload = &redacted
		}
	}
	return v
}

// listJobs reads the transient queue windows. Jobs forwarded into the send
// queue shadow their priority-queue twin under the original id.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	states := []queue.Status{queue.StatusWaiting, queue.StatusDelayed, queue.StatusActive, queue.StatusFailed}
	if v := r.URL.Query().Get("status"); v != "" {
		states = []queue.Status{queue.Status(v)}
	}
	limit := intParam(r, "limit", defaultListLimit, 1, maxListLimit)
	page := intParam(r, "page", 1, 1, 1<<20)

	byID := make(map[string]jobView)
	for _, q := range []queue.Queue{s.Queues.High, s.Queues.Medium, s.Queues.Low, s.Queues.Send} {
		jobs, err := q.Jobs(r.Context(), states, 0, page*limit-1)
		if err != nil {
			writeErr(w, err)
			return
		}
		for _, j := range jobs {
			v := viewOf(j, false)
			byID[v.ID] = v
		}
	}
	items := make([]jobView, 0, len(byID))
	for _, v := range byID {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })

	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "jobs": items[start:end], "limit": limit, "page": page})
}

// getJob resolves an id against the queues, preferring the forwarded copy in
// the send queue since it carries the freshest state.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, lookup := range []struct {
		q  queue.Queue
		id string
	}{
		{s.Queues.Send, dispatch.DerivedID(id)},
		{s.Queues.Send, id},
		{s.Queues.High, id},
		{s.Queues.Medium, id},
		{s.Queues.Low, id},
	} {
		j, err := lookup.q.Job(r.Context(), lookup.id)
		if errors.Is(err, queue.ErrUnknownJob) {
			continue
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		v := viewOf(j, true)
		v.ID = id
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job": v})
		return
	}
	writeErr(w, queue.ErrUnknownJob)
}

func (s *Server) streamJobs(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if v := r.URL.Query().Get("ids"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if err := s.Stream.Serve(w, r, ids); err != nil {
		writeErr(w, err)
	}
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	queues := map[string]map[queue.Status]int{}
	for name, q := range map[string]queue.Queue{
		"high": s.Queues.High, "medium": s.Queues.Medium, "low": s.Queues.Low, "send": s.Queues.Send,
	} {
		counts, err := q.Counts(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		queues[name] = counts
	}
	durable, err := s.Log.CountByStatus(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "queues": queues, "log": durable})
}

func intParam(r *http.Request, name string, def, min, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
