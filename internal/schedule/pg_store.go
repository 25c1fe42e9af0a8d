package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smartmed/scheduling/internal/db"
)

type PgStore struct {
	pool db.Pool
}

func NewPgStore(pool db.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var dayOfWeek *int16
	var date *time.Time
	var ranges []byte

	err := row.Scan(
		&w.ID,
		&w.StaffID,
		&w.Kind,
		&dayOfWeek,
		&date,
		&ranges,
		&w.SlotDurationMinutes,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	if dayOfWeek != nil {
		w.DayOfWeek = time.Weekday(*dayOfWeek)
	}
	if date != nil {
		w.Date = *date
	}
	if err := json.Unmarshal(ranges, &w.Ranges); err != nil {
		return nil, fmt.Errorf("decode window ranges: %w", err)
	}

	return &w, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var windowID *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.StaffID,
		&windowID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.Exception,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.WindowID = windowID
	return &s, nil
}

func windowInsertArgs(w AvailabilityWindow) ([]any, error) {
	ranges, err := json.Marshal(w.Ranges)
	if err != nil {
		return nil, fmt.Errorf("encode window ranges: %w", err)
	}

	var dayOfWeek *int16
	var date *time.Time
	switch w.Kind {
	case KindWeekly:
		d := int16(w.DayOfWeek)
		dayOfWeek = &d
	case KindDateSpecific:
		d := w.Date
		date = &d
	}

	return []any{w.ID, w.StaffID, w.Kind, dayOfWeek, date, ranges, w.SlotDurationMinutes, w.CreatedAt, w.UpdatedAt}, nil
}

// Interface methods

func (s *PgStore) StaffExists(ctx context.Context, staffID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM staff WHERE id = $1)
	`, staffID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PgStore) ListWindows(ctx context.Context, staffID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, staff_id, kind, day_of_week, date, ranges, slot_duration_minutes, created_at, updated_at
		FROM availability_windows
		WHERE staff_id = $1
		ORDER BY kind, day_of_week, date
	`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	return result, rows.Err()
}

func (s *PgStore) GetDateWindow(ctx context.Context, staffID uuid.UUID, date time.Time) (*AvailabilityWindow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, staff_id, kind, day_of_week, date, ranges, slot_duration_minutes, created_at, updated_at
		FROM availability_windows
		WHERE staff_id = $1 AND kind = 'date' AND date = $2
	`, staffID, date)
	return scanWindow(row)
}

func (s *PgStore) GetWeeklyWindow(ctx context.Context, staffID uuid.UUID, weekday time.Weekday) (*AvailabilityWindow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, staff_id, kind, day_of_week, date, ranges, slot_duration_minutes, created_at, updated_at
		FROM availability_windows
		WHERE staff_id = $1 AND kind = 'weekly' AND day_of_week = $2
	`, staffID, int16(weekday))
	return scanWindow(row)
}

func (s *PgStore) ReplaceWindows(ctx context.Context, staffID uuid.UUID, windows []AvailabilityWindow, slots []TimeSlot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace windows: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_windows WHERE staff_id = $1
	`, staffID); err != nil {
		return fmt.Errorf("delete windows: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM time_slots WHERE staff_id = $1 AND status = 'available'
	`, staffID); err != nil {
		return fmt.Errorf("delete available slots: %w", err)
	}

	// Booked slots are never deleted: detach them from the old window
	// and flag them until a matching new slot re-adopts them below.
	if _, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET exception = TRUE, window_id = NULL, updated_at = now()
		WHERE staff_id = $1 AND status = 'booked'
	`, staffID); err != nil {
		return fmt.Errorf("flag booked slots: %w", err)
	}

	for _, w := range windows {
		args, err := windowInsertArgs(w)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_windows (id, staff_id, kind, day_of_week, date, ranges, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, args...); err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}

	for _, slot := range slots {
		if err := insertSlotGuarded(ctx, tx, slot); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace windows: %w", err)
	}
	return nil
}

func (s *PgStore) InsertSlots(ctx context.Context, slots []TimeSlot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert slots: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, slot := range slots {
		if err := insertSlotGuarded(ctx, tx, slot); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert slots: %w", err)
	}
	return nil
}

// insertSlotGuarded writes one slot candidate. A booked slot with the
// same start and end is re-adopted by the candidate's window; any other
// overlapping slot suppresses the insert, preserving the per-staff
// non-overlap invariant.
func insertSlotGuarded(ctx context.Context, tx pgx.Tx, slot TimeSlot) error {
	tag, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET window_id = $1, exception = FALSE, updated_at = now()
		WHERE staff_id = $2 AND start_time = $3 AND end_time = $4 AND status = 'booked'
	`, slot.WindowID, slot.StaffID, slot.StartTime, slot.EndTime)
	if err != nil {
		return fmt.Errorf("re-adopt booked slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO time_slots (id, staff_id, window_id, start_time, end_time, status, exception, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, FALSE, $7, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM time_slots t
			WHERE t.staff_id = $2 AND t.start_time < $5 AND t.end_time > $4
		)
	`, slot.ID, slot.StaffID, slot.WindowID, slot.StartTime, slot.EndTime, slot.Status, slot.CreatedAt, slot.UpdatedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (s *PgStore) HasSlotsForWindow(ctx context.Context, windowID uuid.UUID, dayStart, dayEnd time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM time_slots
			WHERE window_id = $1 AND start_time >= $2 AND start_time < $3
		)
	`, windowID, dayStart, dayEnd).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PgStore) ListAvailableSlots(ctx context.Context, staffID uuid.UUID, dayStart, dayEnd time.Time) ([]TimeSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, staff_id, window_id, start_time, end_time, status, exception, created_at, updated_at
		FROM time_slots
		WHERE staff_id = $1 AND status = 'available' AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`, staffID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *slot)
	}

	return result, rows.Err()
}

func (s *PgStore) ListWeeklyStaff(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT staff_id FROM availability_windows WHERE kind = 'weekly'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}

	return result, rows.Err()
}
