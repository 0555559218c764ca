package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/dispatch"
	"github.com/trubo/mail-gateway/internal/queue"
)

// adminListJobs reads the durable event log, not the queues.
func (s *Server) adminListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := intParam(r, "limit", defaultListLimit, 1, maxListLimit)
	page := intParam(r, "page", 1, 1, 1<<20)
	records, err := s.Log.List(r.Context(), status, limit, page)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "jobs": records, "limit": limit, "page": page})
}

func (s *Server) adminGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Log.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job": rec})
}

func (s *Server) adminJobEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.Log.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "events": events})
}

// adminRetryJob re-enqueues the logged payload under a fresh id. The copy is
// tagged with the source id so stream clients watching the original keep
// seeing updates.
func (s *Server) adminRetryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.Log.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	var job core.MailJob
	if err := json.Unmarshal(rec.Payload, &job); err != nil {
		writeErr(w, core.NewValidationError(map[string]string{"payload": "logged payload is not replayable"}))
		return
	}
	var in struct {
		Priority string `json:"priority"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	if in.Priority != "" {
		p, err := core.ParsePriority(in.Priority)
		if err != nil {
			writeErr(w, core.NewValidationError(map[string]string{"priority": err.Error()}))
			return
		}
		job.Priority = p
	}
	job.OriginalID = id
	newID, err := s.Ingest.EnqueueJob(r.Context(), job)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "jobId": newID})
}

// adminSetStatus is the out-of-band report target used by workers running
// without direct store access.
func (s *Server) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Status == "" {
		writeErr(w, core.NewValidationError(map[string]string{"status": "status is required"}))
		return
	}
	var result, errVal any
	if len(in.Result) > 0 {
		result = in.Result
	}
	if len(in.Error) > 0 {
		errVal = in.Error
	}
	if err := s.Log.RecordStatus(r.Context(), id, in.Status, result, errVal); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// adminDeleteJob removes every transient copy and the durable record.
func (s *Server) adminDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, target := range []struct {
		q  queue.Queue
		id string
	}{
		{s.Queues.High, id},
		{s.Queues.Medium, id},
		{s.Queues.Low, id},
		{s.Queues.Send, id},
		{s.Queues.Send, dispatch.DerivedID(id)},
	} {
		if err := target.q.Remove(r.Context(), target.id); err != nil {
			writeErr(w, err)
			return
		}
	}
	if err := s.Log.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
