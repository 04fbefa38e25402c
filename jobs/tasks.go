package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/boostline/boostline/internal/audit"
)

const (
	// QueueAudit is the queue carrying audit delivery tasks.
	QueueAudit = "audit"
	// TaskTypeAccessEvent delivers one gate decision record.
	TaskTypeAccessEvent = "audit:access_event"
	// TaskTypeSignInAttempt delivers one raw sign-in attempt record.
	TaskTypeSignInAttempt = "audit:sign_in_attempt"
)

// NewAccessEventTask wraps an access event for the queue.
func NewAccessEventTask(event audit.AccessEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAccessEvent, data), nil
}

// NewSignInAttemptTask wraps a sign-in attempt for the queue.
func NewSignInAttemptTask(attempt audit.SignInAttempt) (*asynq.Task, error) {
	data, err := json.Marshal(attempt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSignInAttempt, data), nil
}

// AccessEventHandler returns the handler persisting access-event tasks
// through the given sink. Sink writes are idempotent on the record ID,
// so asynq retries are safe.
func AccessEventHandler(sink audit.Sink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event audit.AccessEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			return asynq.SkipRetry
		}
		return sink.WriteEvent(ctx, event)
	}
}

// SignInAttemptHandler returns the handler persisting sign-in telemetry
// tasks through the given sink.
func SignInAttemptHandler(sink audit.Sink) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var attempt audit.SignInAttempt
		if err := json.Unmarshal(t.Payload(), &attempt); err != nil {
			return asynq.SkipRetry
		}
		return sink.WriteAttempt(ctx, attempt)
	}
}

// Enqueuer implements audit.Sink by pushing records onto the queue; the
// worker process drains them into Postgres. Used when audit durability
// matters more than collector latency.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer around an asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// WriteEvent implements audit.Sink.
func (e *Enqueuer) WriteEvent(ctx context.Context, event audit.AccessEvent) error {
	task, err := NewAccessEventTask(event)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueAudit))
	return err
}

// WriteAttempt implements audit.Sink.
func (e *Enqueuer) WriteAttempt(ctx context.Context, attempt audit.SignInAttempt) error {
	task, err := NewSignInAttemptTask(attempt)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueAudit))
	return err
}

var _ audit.Sink = (*Enqueuer)(nil)
