package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trubo/mail-gateway/internal/core"
)

// API sends through a transactional-email HTTP provider (Resend-compatible
// surface: POST /emails with a bearer key).
type API struct {
	Base string
	Key  string // the system's shared key
	From string

	Client *http.Client
}

type apiRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []core.Attachment `json:"attachments,omitempty"`
}

type apiResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (a *API) Send(ctx context.Context, job core.MailJob) (Result, error) {
	return a.SendWithKey(ctx, job, a.Key)
}

func (a *API) SendWithKey(ctx context.Context, job core.MailJob, key string) (Result, error) {
	if key == "" {
		return Result{}, &core.ProviderError{Message: "missing provider key"}
	}
	body, err := json.Marshal(apiRequest{
		From:        a.From,
		To:          job.To,
		Subject:     job.Subject,
		HTML:        job.HTML,
		Text:        job.Text,
		Attachments: job.Attachments,
	})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Base+"/emails", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var out apiResponse
	_ = json.Unmarshal(raw, &out)

	// The provider reports failures both as non-2xx and as an error object
	// in a 200 body; either way it becomes an error so the queue's retry
	// policy applies.
	if out.Error != nil {
		return Result{}, &core.ProviderError{Message: out.Error.Message, Diagnostic: json.RawMessage(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &core.ProviderError{
			Message:    fmt.Sprintf("provider returned %d", resp.StatusCode),
			Diagnostic: json.RawMessage(raw),
		}
	}
	return Result{ID: out.ID}, nil
}
