package core

import (
	"encoding/json"
	"fmt"
)

// JobName is the single job type flowing through the pipeline.
const JobName = "send-message"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority returns the priority for s, defaulting to medium when empty.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

// DeliveryMethod tags how a payload will be delivered. The variant is chosen
// once when the job is constructed, never re-derived inside the worker.
type DeliveryMethod string

const (
	DeliverShared    DeliveryMethod = "shared"     // provider API with the system key
	DeliverCallerKey DeliveryMethod = "caller_key" // provider API with the caller's key
	DeliverSMTP      DeliveryMethod = "smtp"       // direct SMTP
)

type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// Recipients is one email or a non-empty list of emails on the wire.
type Recipients []string

func (r *Recipients) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*r = Recipients{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("to: expected string or array of strings")
	}
	*r = Recipients(many)
	return nil
}

func (r Recipients) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// MailRequest is one item of the batch send endpoint.
type MailRequest struct {
	To          Recipients   `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html,omitempty"`
	Text        string       `json:"text,omitempty"`
	Priority    string       `json:"priority,omitempty"`
	ProviderKey string       `json:"providerKey,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	SMTPUser        string `json:"smtpUser,omitempty"`
	SMTPAppPassword string `json:"smtpAppPassword,omitempty"`
	SMTPFrom        string `json:"smtpFrom,omitempty"`
}

// MailJob is the payload carried through the queues. Compared to the inbound
// request it has a resolved priority, a tagged delivery variant and, once
// forwarded or retried, the id of the job it was derived from.
type MailJob struct {
	To          Recipients     `json:"to"`
	Subject     string         `json:"subject"`
	HTML        string         `json:"html,omitempty"`
	Text        string         `json:"text,omitempty"`
	Priority    Priority       `json:"priority"`
	Delivery    DeliveryMethod `json:"delivery"`
	ProviderKey string         `json:"providerKey,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`

	SMTPUser        string `json:"smtpUser,omitempty"`
	SMTPAppPassword string `json:"smtpAppPassword,omitempty"`
	SMTPFrom        string `json:"smtpFrom,omitempty"`

	// OriginalID points at the job this one was derived from. Empty for
	// first-hand jobs.
	OriginalID string `json:"originalId,omitempty"`
}

// Redacted returns a copy safe for durable persistence: the caller's provider
// key and SMTP credentials never reach the event log.
func (j MailJob) Redacted() MailJob {
	j.ProviderKey = ""
	j.SMTPUser = ""
	j.SMTPAppPassword = ""
	j.SMTPFrom = ""
	return j
}
