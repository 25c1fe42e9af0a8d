package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStaffNotFound  = errors.New("staff member not found")
	ErrWindowNotFound = errors.New("availability window not found")
)

// Store contains all DB interactions needed by the schedule service.
type Store interface {
	StaffExists(ctx context.Context, staffID uuid.UUID) (bool, error)

	ListWindows(ctx context.Context, staffID uuid.UUID) ([]AvailabilityWindow, error)
	GetDateWindow(ctx context.Context, staffID uuid.UUID, date time.Time) (*AvailabilityWindow, error)
	GetWeeklyWindow(ctx context.Context, staffID uuid.UUID, weekday time.Weekday) (*AvailabilityWindow, error)

	// ReplaceWindows transactionally swaps a staff member's window set
	// and its derived slots: prior windows and their Available slots are
	// deleted, Booked slots are detached and flagged as exceptions, the
	// new windows are inserted, and the pre-generated candidates (the
	// date-specific expansions) are inserted where they do not overlap a
	// surviving booked slot. A booked slot with an identical start and
	// end as a candidate is re-adopted by the new window instead.
	ReplaceWindows(ctx context.Context, staffID uuid.UUID, windows []AvailabilityWindow, slots []TimeSlot) error

	// InsertSlots adds generated slots, silently skipping any candidate
	// that overlaps an existing slot for the same staff member. Used by
	// on-demand weekly materialization, where concurrent readers may
	// race to generate the same date.
	InsertSlots(ctx context.Context, slots []TimeSlot) error

	HasSlotsForWindow(ctx context.Context, windowID uuid.UUID, dayStart, dayEnd time.Time) (bool, error)
	ListAvailableSlots(ctx context.Context, staffID uuid.UUID, dayStart, dayEnd time.Time) ([]TimeSlot, error)

	// ListWeeklyStaff returns ids of staff members that have at least
	// one weekly window. Used by the slot worker to extend the horizon.
	ListWeeklyStaff(ctx context.Context) ([]uuid.UUID, error)
}
