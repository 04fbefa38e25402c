package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boostline/boostline/internal/platform/db"
)

const uniqueViolation = "23505"

// PGSink persists audit records in Postgres. Inserts are idempotent on
// the record ID so redelivery by the task queue cannot duplicate rows.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink wraps an existing connection pool.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// WriteEvent implements Sink. The event row and its daily rollup counter
// move in one transaction so redelivery cannot skew the rollup.
func (s *PGSink) WriteEvent(ctx context.Context, event AccessEvent) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO access_events (id, route, method, decision, reason, subject, ip, user_agent, locale, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			event.ID, event.Route, event.Method, string(event.Decision), event.Reason,
			event.Subject, event.IP, event.UserAgent, event.Locale, event.At); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO access_event_rollups (day, decision, total)
			VALUES (date_trunc('day', $1::timestamptz), $2, 1)
			ON CONFLICT (day, decision) DO UPDATE SET total = access_event_rollups.total + 1`,
			event.At, string(event.Decision))
		return err
	})
	if isDuplicate(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: insert access event: %w", err)
	}
	return nil
}

// WriteAttempt implements Sink.
func (s *PGSink) WriteAttempt(ctx context.Context, attempt SignInAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sign_in_attempts (id, email, succeeded, ip, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		attempt.ID, attempt.Email, attempt.Succeeded, attempt.IP, attempt.UserAgent, attempt.At)
	if isDuplicate(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit: insert sign-in attempt: %w", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Sink = (*PGSink)(nil)
