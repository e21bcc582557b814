package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
)

const (
	outboxInsert = `
		INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	// The claim commits with the rows already in processing, so a second
	// processor skips them until claimed_at is older than the lease ($3
	// seconds). SKIP LOCKED keeps concurrent claims from waiting on each other.
	outboxClaim = `
		UPDATE outbox_events
		SET status = $1, claimed_at = NOW(), retry_count = retry_count + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
				OR (status = $1 AND claimed_at < NOW() - make_interval(secs => $3::float8))
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_type, payload, status, error_message, retry_count,
			claimed_at, created_at, processed_at, updated_at`

	outboxSetStatus = `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			claimed_at = NULL,
			processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $3`

	outboxPurge = `
		DELETE FROM outbox_events
		WHERE status = 'processed' AND processed_at < $1`
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return errors.New("outbox event requires a payload")
	}
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt

	if _, err := r.db.ExecContext(ctx, outboxInsert,
		event.ID, event.EventType, []byte(event.Payload), event.Status, event.CreatedAt); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, outboxClaim,
		model.OutboxStatusProcessing, limit, repository.OutboxClaimLease.Seconds()); err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	if _, err := r.db.ExecContext(ctx, outboxSetStatus, status, errorMessage, id); err != nil {
		return fmt.Errorf("update outbox event %s: %w", id, err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, outboxPurge, before)
	if err != nil {
		return 0, fmt.Errorf("purge outbox events: %w", err)
	}
	return res.RowsAffected()
}
