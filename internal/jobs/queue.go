// Package jobs implements the durable retryable job queue. A job row is the
// unit of work; deleting the row is the completion signal, and a failed run
// pushes the row's try_at into the future instead.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/podhaven/crawler/internal/store"
)

// ErrUnknownJob marks a job whose name has no registered handler. Such jobs
// are parked dead rather than retried, since no amount of waiting will
// produce a handler.
var ErrUnknownJob = errors.New("no handler registered for job name")

const sqlEnqueueJob = `
INSERT INTO job (name, args)
VALUES ($1, $2)
RETURNING id`

// Enqueue adds a job to the queue, runnable immediately. It participates in
// the caller's transaction when q is a pgx.Tx.
func Enqueue(ctx context.Context, q store.Querier, name string, args any) (int64, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("encoding job args: %w", err)
	}
	var id int64
	if err := q.QueryRow(ctx, sqlEnqueueJob, name, encoded).Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueueing %s job: %w", name, err)
	}
	return id, nil
}

// NextRetry returns how long a job waits before its next attempt, given the
// number of errors it has accumulated. The quartic curve keeps early retries
// quick and pushes chronic failures far into the future.
func NextRetry(numErrors int32) time.Duration {
	n := int64(numErrors)
	return time.Duration(n*n*n*n+3) * time.Second
}

// Handler runs one job's payload. A nil error completes the job; any error
// schedules a retry.
type Handler func(ctx context.Context, args json.RawMessage) error

// Registry maps job names to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job name, replacing any previous binding.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Lookup returns the handler for name, or ErrUnknownJob.
func (r *Registry) Lookup(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return h, nil
}

// JobNoOp does nothing, successfully. Useful for exercising the queue.
const JobNoOp = "no_op"

// JobVerificationMailer sends a signup verification email to an account.
const JobVerificationMailer = "verification_mailer"

// VerificationMailerArgs is the payload of a verification_mailer job.
type VerificationMailerArgs struct {
	AccountID int64  `json:"account_id"`
	Email     string `json:"email"`
	Code      string `json:"code"`
}

// DefaultRegistry returns a registry with the built-in handlers bound.
func DefaultRegistry(log *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(JobNoOp, func(context.Context, json.RawMessage) error {
		return nil
	})
	r.Register(JobVerificationMailer, func(_ context.Context, raw json.RawMessage) error {
		var args VerificationMailerArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decoding verification_mailer args: %w", err)
		}
		// Mail delivery is not wired to a provider yet; record the send
		// so the queue semantics are exercised end to end.
		log.Info("sending verification email",
			zap.Int64("account_id", args.AccountID),
			zap.String("email", args.Email))
		return nil
	})
	return r
}
