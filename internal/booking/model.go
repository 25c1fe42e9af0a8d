package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// ListFilter selects one of the appointment list buckets.
type ListFilter string

const (
	FilterUpcoming ListFilter = "upcoming"
	FilterPending  ListFilter = "pending"
	FilterPast     ListFilter = "past"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Staff struct {
	ID             uuid.UUID
	Name           string
	Specialization *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Appointment is a patient's claim on a time slot.
type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	StaffID    uuid.UUID
	TimeSlotID uuid.UUID
	Status     AppointmentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AppointmentDetail is the read-side shape for listings: the
// appointment joined with its slot times and both party names, so the
// patient view can show the doctor and the staff view the patient.
type AppointmentDetail struct {
	Appointment
	StartTime   time.Time
	EndTime     time.Time
	PatientName string
	StaffName   string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
