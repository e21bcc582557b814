package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

const (
	scheduleColumns = `id, doctor_id, schedule_date::text AS schedule_date, work_start, work_end,
		breaks, slot_duration, is_available, created_at, updated_at`
	slotColumns = `id, schedule_id, position, start_time, end_time, start_minute, end_minute,
		duration, is_booked, online_fee, offline_fee`
)

const insertSlotQuery = `
	INSERT INTO schedule_slots (` + slotColumns + `)
	VALUES (:id, :schedule_id, :position, :start_time, :end_time, :start_minute, :end_minute,
		:duration, :is_booked, :online_fee, :offline_fee)
`

type scheduleRepository struct {
	BaseRepository
}

func NewScheduleRepository(base BaseRepository) repository.ScheduleRepository {
	return &scheduleRepository{base}
}

func (r *scheduleRepository) CreateIfAbsent(ctx context.Context, schedule *model.DaySchedule) (bool, error) {
	query := `
		INSERT INTO day_schedules (
			id, doctor_id, schedule_date, work_start, work_end,
			breaks, slot_duration, is_available, created_at, updated_at
		) VALUES (
			:id, :doctor_id, :schedule_date, :work_start, :work_end,
			:breaks, :slot_duration, :is_available, :created_at, :updated_at
		)
		ON CONFLICT (doctor_id, schedule_date) DO NOTHING
	`
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	created := false
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, schedule)
		if err != nil {
			return fmt.Errorf("failed to create schedule: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return nil
		}
		created = true

		if len(schedule.Slots) == 0 {
			return nil
		}
		if _, err := tx.NamedExecContext(ctx, insertSlotQuery, schedule.Slots); err != nil {
			return fmt.Errorf("failed to create slots: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *scheduleRepository) GetByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM day_schedules WHERE doctor_id = $1 AND schedule_date = $2`

	var schedule model.DaySchedule
	if err := r.db.GetContext(ctx, &schedule, query, doctorID, date); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrNoScheduleForDate
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	slots := []model.Slot{}
	slotQuery := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE schedule_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &slots, slotQuery, schedule.ID); err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	schedule.Slots = slots
	return &schedule, nil
}

func (r *scheduleRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to string) ([]*model.DaySchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM day_schedules
		WHERE doctor_id = $1 AND schedule_date BETWEEN $2 AND $3
		ORDER BY schedule_date
	`
	var schedules []*model.DaySchedule
	if err := r.db.SelectContext(ctx, &schedules, query, doctorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	if len(schedules) == 0 {
		return schedules, nil
	}

	ids := make([]string, 0, len(schedules))
	byID := make(map[uuid.UUID]*model.DaySchedule, len(schedules))
	for _, s := range schedules {
		s.Slots = []model.Slot{}
		ids = append(ids, s.ID.String())
		byID[s.ID] = s
	}

	var slots []model.Slot
	slotQuery := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE schedule_id = ANY($1::uuid[])
		ORDER BY schedule_id, position
	`
	if err := r.db.SelectContext(ctx, &slots, slotQuery, pq.StringArray(ids)); err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	for _, slot := range slots {
		if s, ok := byID[slot.ScheduleID]; ok {
			s.Slots = append(s.Slots, slot)
		}
	}
	return schedules, nil
}

func slotPredicate(match model.SlotMatch) (string, []interface{}) {
	if match.ByID() {
		return "id = $2", []interface{}{match.SlotID}
	}
	return "start_minute = $2 AND end_minute = $3", []interface{}{match.StartMinute, match.EndMinute}
}

func (r *scheduleRepository) ReserveSlot(ctx context.Context, scheduleID uuid.UUID, match model.SlotMatch) (*model.Slot, error) {
	predicate, args := slotPredicate(match)
	query := `
		UPDATE schedule_slots s
		SET is_booked = TRUE
		WHERE s.schedule_id = $1 AND ` + predicate + ` AND s.is_booked = FALSE
			AND EXISTS (SELECT 1 FROM day_schedules d WHERE d.id = s.schedule_id AND d.is_available)
		RETURNING ` + slotColumns

	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, append([]interface{}{scheduleID}, args...)...)
	if err == nil {
		return &slot, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	// Nothing flipped; work out why.
	lookup := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE schedule_id = $1 AND ` + predicate
	if err := r.db.GetContext(ctx, &slot, lookup, append([]interface{}{scheduleID}, args...)...); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	if slot.IsBooked {
		return nil, apperrors.ErrSlotAlreadyBooked
	}
	return nil, apperrors.ErrSlotUnavailable
}

func (r *scheduleRepository) ReleaseSlot(ctx context.Context, scheduleID uuid.UUID, match model.SlotMatch) (*model.Slot, error) {
	predicate, args := slotPredicate(match)
	query := `
		UPDATE schedule_slots
		SET is_booked = FALSE
		WHERE schedule_id = $1 AND ` + predicate + `
		RETURNING ` + slotColumns

	var slot model.Slot
	if err := r.db.GetContext(ctx, &slot, query, append([]interface{}{scheduleID}, args...)...); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}
	return &slot, nil
}

func (r *scheduleRepository) SetAvailability(ctx context.Context, doctorID uuid.UUID, from, to string, available bool) (int, error) {
	query := `
		UPDATE day_schedules
		SET is_available = $1, updated_at = NOW()
		WHERE doctor_id = $2 AND schedule_date BETWEEN $3 AND $4
	`
	result, err := r.db.ExecContext(ctx, query, available, doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to update schedule availability: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

func (r *scheduleRepository) ReplaceSlots(ctx context.Context, schedule *model.DaySchedule) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var id uuid.UUID
		if err := tx.GetContext(ctx, &id, `SELECT id FROM day_schedules WHERE id = $1 FOR UPDATE`, schedule.ID); err != nil {
			if isNoRows(err) {
				return apperrors.ErrNoScheduleForDate
			}
			return fmt.Errorf("failed to lock schedule: %w", err)
		}

		schedule.UpdatedAt = time.Now()
		header := `
			UPDATE day_schedules
			SET work_start = :work_start, work_end = :work_end, breaks = :breaks,
				slot_duration = :slot_duration, updated_at = :updated_at
			WHERE id = :id
		`
		if _, err := tx.NamedExecContext(ctx, header, schedule); err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_slots WHERE schedule_id = $1 AND is_booked = FALSE`, schedule.ID); err != nil {
			return fmt.Errorf("failed to clear free slots: %w", err)
		}

		var booked []model.Slot
		if err := tx.SelectContext(ctx, &booked, `SELECT `+slotColumns+` FROM schedule_slots WHERE schedule_id = $1`, schedule.ID); err != nil {
			return fmt.Errorf("failed to get booked slots: %w", err)
		}
		for _, b := range booked {
			kept := false
			for _, s := range schedule.Slots {
				if s.StartMinute == b.StartMinute && s.EndMinute == b.EndMinute {
					kept = true
					break
				}
			}
			if !kept {
				return apperrors.ErrSlotAlreadyBooked
			}
		}

		if len(schedule.Slots) == 0 {
			return nil
		}
		upsert := insertSlotQuery + `
			ON CONFLICT (schedule_id, start_minute, end_minute) DO UPDATE
			SET position = EXCLUDED.position, start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time, duration = EXCLUDED.duration,
				online_fee = EXCLUDED.online_fee, offline_fee = EXCLUDED.offline_fee
		`
		if _, err := tx.NamedExecContext(ctx, upsert, schedule.Slots); err != nil {
			return fmt.Errorf("failed to write slots: %w", err)
		}
		return nil
	})
}

func (r *scheduleRepository) Delete(ctx context.Context, scheduleID uuid.UUID) error {
	query := `
		DELETE FROM day_schedules
		WHERE id = $1
			AND NOT EXISTS (SELECT 1 FROM schedule_slots WHERE schedule_id = $1 AND is_booked)
	`
	result, err := r.db.ExecContext(ctx, query, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM day_schedules WHERE id = $1)`, scheduleID); err != nil {
		return fmt.Errorf("failed to check schedule: %w", err)
	}
	if exists {
		return apperrors.ErrSlotAlreadyBooked
	}
	return apperrors.ErrNoScheduleForDate
}
