package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsehook/pulsehook/internal/classify"
	"github.com/pulsehook/pulsehook/internal/event"
)

// EventStore persists webhook events and drives their processing state.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Insert stores a freshly classified event. The caller assigns the ID.
func (s *EventStore) Insert(ctx context.Context, ev event.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pulsehook.webhook_events(id, account_id, platform, kind, priority, payload, occurred_at, status)
		VALUES ($1, NULLIF($2,'')::uuid, $3, $4, $5, $6::jsonb, $7, 'received')`,
		ev.ID, ev.AccountID, ev.Platform, string(ev.Kind), string(ev.Priority), string(ev.Payload), ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// MarkProcessing flags an event as picked up by a worker.
func (s *EventStore) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='processing', last_attempt_at=now(), updated_at=now()
		WHERE id=$1`, id)
	return err
}

// MarkProcessed records a successful processing attempt. last_error is kept
// in place but considered stale once processed.
func (s *EventStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='processed', attempts=attempts+1, last_attempt_at=now(), updated_at=now()
		WHERE id=$1`, id)
	return err
}

// MarkFailed records a failed processing attempt and returns the new attempt
// count so the caller can decide between requeue and abandonment.
func (s *EventStore) MarkFailed(ctx context.Context, id, lastErr string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='failed', attempts=attempts+1, last_error=$2, last_attempt_at=now(), updated_at=now()
		WHERE id=$1
		RETURNING attempts`, id, lastErr).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("mark failed: %w", err)
	}
	return attempts, nil
}

// MarkDispatchFailed records a publish failure without consuming a processing
// attempt: the attempt counter tracks worker processing only, so a broker
// outage can never exhaust a kind's ceiling. The event lands in failed with
// last_attempt_at untouched, which leaves it immediately claimable by the
// retry sweep.
func (s *EventStore) MarkDispatchFailed(ctx context.Context, id, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='failed', last_error=$2, updated_at=now()
		WHERE id=$1`, id, lastErr)
	if err != nil {
		return fmt.Errorf("mark dispatch failed: %w", err)
	}
	return nil
}

// MarkAbandoned moves an event to its terminal abandoned state and records
// the reason in the DLQ table.
func (s *EventStore) MarkAbandoned(ctx context.Context, id, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='abandoned', updated_at=now()
		WHERE id=$1`, id); err != nil {
		return fmt.Errorf("mark abandoned: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO pulsehook.dlq(event_id, reason) VALUES ($1,$2)`, id, reason); err != nil {
		return fmt.Errorf("dlq insert: %w", err)
	}
	return tx.Commit(ctx)
}

// Get fetches one event by id.
func (s *EventStore) Get(ctx context.Context, id string) (event.Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(account_id::text,''), platform, kind, priority, payload::text,
		       occurred_at, status, attempts, COALESCE(last_error,''), last_attempt_at,
		       created_at, updated_at
		FROM pulsehook.webhook_events WHERE id=$1`, id)
	return scanEvent(row)
}

// ListFilter narrows List results; zero values mean no filter.
type ListFilter struct {
	Status    string
	Kind      string
	AccountID string
	Limit     int
}

// List returns events newest first, optionally filtered.
func (s *EventStore) List(ctx context.Context, f ListFilter) ([]event.Event, error) {
	args := []any{}
	where := "1=1"
	argn := 0
	if f.Status != "" {
		argn++
		where += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		argn++
		where += fmt.Sprintf(" AND kind = $%d", argn)
		args = append(args, f.Kind)
	}
	if f.AccountID != "" {
		argn++
		where += fmt.Sprintf(" AND account_id = $%d", argn)
		args = append(args, f.AccountID)
	}
	limit := 50
	if f.Limit > 0 {
		limit = f.Limit
	}
	argn++
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT id, COALESCE(account_id::text,''), platform, kind, priority, payload::text,
		       occurred_at, status, attempts, COALESCE(last_error,''), last_attempt_at,
		       created_at, updated_at
		FROM pulsehook.webhook_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`, where, argn)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ResetForReplay puts an event back to received with a clean attempt count so
// it can be published again.
func (s *EventStore) ResetForReplay(ctx context.Context, id string) (event.Event, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='received', attempts=0, last_error=NULL, updated_at=now()
		WHERE id=$1`, id)
	if err != nil {
		return event.Event{}, fmt.Errorf("reset for replay: %w", err)
	}
	return s.Get(ctx, id)
}

// ClaimDue claims up to limit failed events whose backoff has elapsed, moving
// them to processing so concurrent sweepers skip them. The eligibility rule
// mirrors classify.RetryEligible: attempts below the per-kind ceiling and the
// tier delay for the current attempt count elapsed since the last attempt.
func (s *EventStore) ClaimDue(ctx context.Context, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM pulsehook.webhook_events
			WHERE status = 'failed'
			  AND attempts < CASE kind
			      WHEN 'error' THEN 1
			      WHEN 'message' THEN 5
			      WHEN 'mention' THEN 5
			      ELSE 3 END
			  AND (last_attempt_at IS NULL OR last_attempt_at <= now() - CASE
			      WHEN attempts <= 1 THEN interval '5 minutes'
			      WHEN attempts = 2 THEN interval '30 minutes'
			      ELSE interval '2 hours' END)
			ORDER BY last_attempt_at NULLS FIRST
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE pulsehook.webhook_events e
		SET status='processing', updated_at=now()
		FROM due
		WHERE e.id = due.id
		RETURNING e.id, COALESCE(e.account_id::text,''), e.platform, e.kind, e.priority,
		          e.payload::text, e.occurred_at, e.status, e.attempts,
		          COALESCE(e.last_error,''), e.last_attempt_at, e.created_at, e.updated_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ReleaseStale returns events stuck in processing back to failed so the sweep
// can claim them again. ClaimDue moves rows to processing before republishing;
// if that message is then lost, nothing else will ever touch the row.
func (s *EventStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pulsehook.webhook_events
		SET status='failed', updated_at=now()
		WHERE status='processing' AND updated_at < now() - $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("release stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpired deletes terminal events past the retention window. Events that
// ever recorded an error are kept twice as long, and DLQ rows go with their
// events.
func (s *EventStore) PurgeExpired(ctx context.Context, retentionDays int) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM pulsehook.dlq
		WHERE event_id IN (
			SELECT id FROM pulsehook.webhook_events
			WHERE status IN ('processed','abandoned')
			  AND created_at < now() - make_interval(days => $1 * 2)
		)`, retentionDays); err != nil {
		return 0, fmt.Errorf("purge dlq: %w", err)
	}

	ct, err := tx.Exec(ctx, `
		DELETE FROM pulsehook.webhook_events
		WHERE status IN ('processed','abandoned')
		  AND id NOT IN (SELECT event_id FROM pulsehook.dlq)
		  AND CASE
		      WHEN last_error IS NULL THEN created_at < now() - make_interval(days => $1)
		      ELSE created_at < now() - make_interval(days => $1 * 2)
		  END`,
		retentionDays)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		ev          event.Event
		kind        string
		priority    string
		payload     string
		lastAttempt sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.AccountID, &ev.Platform, &kind, &priority, &payload,
		&ev.OccurredAt, &ev.Status, &ev.Attempts, &ev.LastError, &lastAttempt,
		&ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return event.Event{}, err
	}
	ev.Kind = classify.Kind(kind)
	ev.Priority = classify.Priority(priority)
	ev.Payload = []byte(payload)
	if lastAttempt.Valid {
		t := lastAttempt.Time
		ev.LastAttemptAt = &t
	}
	return ev, nil
}
