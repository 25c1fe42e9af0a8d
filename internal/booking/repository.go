package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/smartmed/scheduling/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrStaffNotFound       = errors.New("staff member not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotNotAvailable    = errors.New("slot is not available")
)

// Repository contains all DB interactions needed by the service.
// BookSlot and CancelAppointment each run as a single transaction so a
// failure never leaves an appointment without a booked slot or a
// booked slot without an appointment.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*schedule.TimeSlot, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// BookSlot atomically flips the slot from available to booked and
	// inserts the appointment. Returns ErrSlotNotAvailable if another
	// booking won the slot first.
	BookSlot(ctx context.Context, slotID, patientID, staffID uuid.UUID, status AppointmentStatus) (*Appointment, error)

	// CancelAppointment atomically marks the appointment cancelled and
	// reopens its slot, unless the slot is exception-flagged, in which
	// case the slot stays booked.
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus is a compare-and-set transition used by
	// confirm and complete.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListByStaff(ctx context.Context, staffID uuid.UUID) ([]AppointmentDetail, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
