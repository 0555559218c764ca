// Package queue defines the job-queue primitive the pipeline rides on: an
// at-least-once, FIFO-per-queue buffer with visibility of transient state and
// retry with exponential backoff. The queue owns scheduling state only; it
// forgets completed jobs and callers must treat the durable event log as the
// source of truth for history.
package queue

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

var ErrUnknownJob = errors.New("unknown job")

type Job struct {
	ID        string
	Name      string
	Payload   []byte
	Status    Status
	Attempts  int
	Timestamp time.Time
	Error     string
}

// Handler processes one job delivery. A non-nil error schedules a retry with
// backoff until the attempt ceiling, after which the job is parked as failed.
type Handler func(ctx context.Context, job Job) error

type ConsumeOptions struct {
	// Concurrency bounds in-flight handlers. Zero means 1.
	Concurrency int
	// OnFailed fires once per job, when retries are exhausted.
	OnFailed func(job Job, err error)
}

// Options is the retry contract shared by all queues of one backend.
type Options struct {
	MaxAttempts int           // total delivery attempts per job
	BackoffBase time.Duration // first retry delay; doubles per attempt
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	return o
}

// backoff returns the delay before the next attempt, given how many attempts
// have already run.
func (o Options) backoff(attempts int) time.Duration {
	d := o.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

type Queue interface {
	// Enqueue publishes a payload under a fresh id.
	Enqueue(ctx context.Context, name string, payload []byte) (string, error)
	// EnqueueWithID publishes under a caller-chosen id. If a job with that
	// id was already published, the call is a no-op and the existing id is
	// returned; this is the dedup guard against at-least-once redelivery.
	EnqueueWithID(ctx context.Context, id, name string, payload []byte) (string, error)
	// Jobs returns the transient window for the given states, newest first,
	// sliced [start, end] inclusive.
	Jobs(ctx context.Context, states []Status, start, end int) ([]Job, error)
	// Job looks up one transient job; ErrUnknownJob when the queue has
	// forgotten (or never seen) the id.
	Job(ctx context.Context, id string) (Job, error)
	Remove(ctx context.Context, id string) error
	Counts(ctx context.Context) (map[Status]int, error)
	// Consume blocks, delivering jobs to h until ctx is canceled.
	Consume(ctx context.Context, h Handler, opts ConsumeOptions) error
}
