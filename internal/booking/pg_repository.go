package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smartmed/scheduling/internal/db"
	"github.com/smartmed/scheduling/internal/schedule"
)

type PgRepository struct {
	pool db.Pool
}

func NewPgRepository(pool db.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	var specialization *string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&specialization,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}

	s.Specialization = specialization
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.StaffID,
		&a.TimeSlotID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, created_at, updated_at
		FROM staff
		WHERE id = $1
	`, id)
	return scanStaff(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*schedule.TimeSlot, error) {
	var s schedule.TimeSlot
	var windowID *uuid.UUID

	err := r.pool.QueryRow(ctx, `
		SELECT id, staff_id, window_id, start_time, end_time, status, exception, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`, id).Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.WindowID = windowID
	return &s, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, staff_id, time_slot_id, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) BookSlot(ctx context.Context, slotID, patientID, staffID uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin book slot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Compare-and-set on slot status decides the race.
	tag, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'booked', updated_at = now()
		WHERE id = $1 AND status = 'available'
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("mark slot booked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1)
		`, slotID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check slot: %w", err)
		}
		if !exists {
			return nil, ErrSlotNotFound
		}
		return nil, ErrSlotNotAvailable
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, staff_id, time_slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, patient_id, staff_id, time_slot_id, status, created_at, updated_at
	`, uuid.New(), patientID, staffID, slotID, status)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit book slot: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING id, patient_id, staff_id, time_slot_id, status, created_at, updated_at
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	// Exception-flagged slots stay booked-frozen; they no longer belong
	// to any window and must not reappear as bookable.
	if _, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET status = 'available', updated_at = now()
		WHERE id = $1 AND exception = FALSE
	`, appt.TimeSlotID); err != nil {
		return nil, fmt.Errorf("reopen slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, staff_id, time_slot_id, status, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

const listDetailQuery = `
	SELECT a.id, a.patient_id, a.staff_id, a.time_slot_id, a.status, a.created_at, a.updated_at,
	       t.start_time, t.end_time, p.name, s.name
	FROM appointments a
	JOIN time_slots t ON t.id = a.time_slot_id
	JOIN patients p ON p.id = a.patient_id
	JOIN staff s ON s.id = a.staff_id
`

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, listDetailQuery+`
		WHERE a.patient_id = $1
		ORDER BY t.start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDetails(rows)
}

func (r *PgRepository) ListByStaff(ctx context.Context, staffID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, listDetailQuery+`
		WHERE a.staff_id = $1
		ORDER BY t.start_time
	`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDetails(rows)
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		err := rows.Scan(
			&d.ID,
			&d.PatientID,
			&d.StaffID,
			&d.TimeSlotID,
			&d.Status,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.StartTime,
			&d.EndTime,
			&d.PatientName,
			&d.StaffName,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
