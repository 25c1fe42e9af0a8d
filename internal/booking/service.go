package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/smartmed/scheduling/internal/identity"
	redisclient "github.com/smartmed/scheduling/internal/redis"
	"github.com/smartmed/scheduling/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotAllowed              = errors.New("actor may not perform this operation")
)

// Service drives the appointment state machine. Slot state and
// appointment state always move together inside one repository
// transaction, guarded by a per-slot distributed lock.
//
// Status policy: a patient booking their own appointment starts it
// Pending, awaiting staff confirmation; a staff member booking on a
// patient's behalf confirms it immediately.
type Service struct {
	repo   Repository
	locker redisclient.Locker
}

func NewService(repo Repository, locker redisclient.Locker) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
	}
}

// Book reserves a slot for a patient. The distributed lock ensures
// concurrent requests for the same slot cannot both reach the booking
// transaction; the transaction's compare-and-set on slot status is the
// final arbiter, so exactly one caller wins.
func (s *Service) Book(ctx context.Context, sess identity.Session, patientID, staffID, slotID uuid.UUID) (*Appointment, error) {
	if sess.IsPatient() && sess.UserID != patientID {
		return nil, ErrNotAllowed
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if _, err := s.repo.GetStaffByID(ctx, staffID); err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load staff: %w", err)
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.StaffID != staffID {
		return nil, ErrSlotNotFound
	}
	if slot.Status != schedule.SlotAvailable {
		return nil, ErrSlotNotAvailable
	}

	status := StatusPending
	if sess.IsStaff() {
		status = StatusConfirmed
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		appt, err := s.repo.BookSlot(lockCtx, slotID, patientID, staffID, status)
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"slot_id":    slotID.String(),
			"patient_id": patientID.String(),
			"staff_id":   staffID.String(),
			"status":     string(status),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotNotAvailable) || errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("book slot: %w", err)
	}

	return created, nil
}

// Confirm moves a pending appointment to confirmed. Staff only.
func (s *Service) Confirm(ctx context.Context, sess identity.Session, id uuid.UUID) (*Appointment, error) {
	if !sess.IsStaff() {
		return nil, ErrNotAllowed
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusPending {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusPending, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})

	return updated, nil
}

// Cancel marks an appointment cancelled and reopens its slot. The
// booking patient and any staff member may cancel; an already
// cancelled appointment reads as not found.
func (s *Service) Cancel(ctx context.Context, sess identity.Session, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status == StatusCompleted {
		return nil, ErrInvalidStatusTransition
	}

	if !sess.IsStaff() && sess.UserID != appt.PatientID {
		return nil, ErrNotAllowed
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"actor_id": sess.UserID.String(),
		"role":     string(sess.Role),
	})

	return cancelled, nil
}

// Complete marks a confirmed appointment completed. Staff only.
func (s *Service) Complete(ctx context.Context, sess identity.Session, id uuid.UUID) (*Appointment, error) {
	if !sess.IsStaff() {
		return nil, ErrNotAllowed
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{})

	return updated, nil
}

// ListForUser returns the caller's appointments in one filter bucket,
// ordered by start time ascending. Patients see their own bookings,
// staff see the bookings against their schedule.
func (s *Service) ListForUser(ctx context.Context, sess identity.Session, filter ListFilter) ([]AppointmentDetail, error) {
	var (
		details []AppointmentDetail
		err     error
	)
	if sess.IsStaff() {
		details, err = s.repo.ListByStaff(ctx, sess.UserID)
	} else {
		details, err = s.repo.ListByPatient(ctx, sess.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return FilterAppointments(details, filter, time.Now()), nil
}

// FilterAppointments buckets appointments:
// Upcoming = confirmed with a future start, Pending = awaiting staff
// confirmation, Past = started already or reached a terminal status.
func FilterAppointments(details []AppointmentDetail, filter ListFilter, now time.Time) []AppointmentDetail {
	out := make([]AppointmentDetail, 0, len(details))
	for _, d := range details {
		var keep bool
		switch filter {
		case FilterUpcoming:
			keep = d.Status == StatusConfirmed && d.StartTime.After(now)
		case FilterPending:
			keep = d.Status == StatusPending
		case FilterPast:
			keep = d.StartTime.Before(now) || d.Status == StatusCancelled || d.Status == StatusCompleted
		}
		if keep {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
