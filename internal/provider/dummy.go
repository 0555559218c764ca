package provider

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/trubo/mail-gateway/internal/core"
)

// Dummy simulates a provider with latency and a configurable failure rate.
type Dummy struct {
	Latency  time.Duration
	FailRate float64
}

func NewDummy() *Dummy { return &Dummy{Latency: 50 * time.Millisecond} }

func (d *Dummy) Send(ctx context.Context, _ core.MailJob) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(d.Latency):
	}
	if d.FailRate > 0 && rand.Float64() < d.FailRate {
		return Result{}, &core.ProviderError{Message: "provider_temporary_error"}
	}
	return Result{ID: "dummy-" + strconv.FormatInt(rand.Int63(), 36)}, nil
}
