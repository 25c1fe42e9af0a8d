package schedule

import (
	"time"

	"github.com/google/uuid"
)

type WindowKind string

const (
	// KindWeekly repeats on a fixed weekday.
	KindWeekly WindowKind = "weekly"
	// KindDateSpecific applies to one calendar date and overrides the
	// weekly rule for that weekday.
	KindDateSpecific WindowKind = "date"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

// TimeRange is a wall-clock interval within one day. End is exclusive.
type TimeRange struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// AvailabilityWindow is either a recurring weekly rule or a one-off
// date override for a staff member's working hours.
type AvailabilityWindow struct {
	ID                  uuid.UUID
	StaffID             uuid.UUID
	Kind                WindowKind
	DayOfWeek           time.Weekday // weekly windows only
	Date                time.Time    // date windows only, midnight local
	Ranges              []TimeRange
	SlotDurationMinutes int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TimeSlot is one bookable unit derived from an availability window.
// Exception marks a booked slot whose owning window was removed by a
// later schedule edit; such slots are kept for the appointment's sake
// and never reopened.
type TimeSlot struct {
	ID        uuid.UUID
	StaffID   uuid.UUID
	WindowID  *uuid.UUID // nil once the owning window is gone
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	Exception bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayStart truncates t to local midnight.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
