// Package provider performs the actual mail delivery. Which provider runs is
// decided by the delivery variant tagged on the job at construction time.
package provider

import (
	"context"

	"github.com/trubo/mail-gateway/internal/core"
)

// Result is what a provider reports back on success; it ends up in the job's
// event log record.
type Result struct {
	ID string `json:"id"`
}

type Provider interface {
	Send(ctx context.Context, job core.MailJob) (Result, error)
}

// SMTPConfig is the process-wide SMTP fallback used when a job is tagged for
// SMTP delivery but carries no credentials of its own.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Selector routes a job to its provider: caller key and shared key go to the
// transactional API, the smtp variant goes out directly.
type Selector struct {
	API  *API
	SMTP SMTPConfig
}

func (s *Selector) Send(ctx context.Context, job core.MailJob) (Result, error) {
	switch job.Delivery {
	case core.DeliverCallerKey:
		return s.API.SendWithKey(ctx, job, job.ProviderKey)
	case core.DeliverSMTP:
		cfg := s.SMTP
		if job.SMTPUser != "" {
			cfg.User = job.SMTPUser
		}
		if job.SMTPAppPassword != "" {
			cfg.Password = job.SMTPAppPassword
		}
		if job.SMTPFrom != "" {
			cfg.From = job.SMTPFrom
		}
		return SendSMTP(ctx, cfg, job)
	default:
		return s.API.SendWithKey(ctx, job, s.API.Key)
	}
}
