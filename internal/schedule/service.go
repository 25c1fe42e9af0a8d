package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/smartmed/scheduling/internal/identity"
)

var ErrNotScheduleOwner = errors.New("only the owning staff member may edit this schedule")

// Service owns availability windows and their derived time slots.
// Date-specific windows are materialized into slots at save time;
// weekly windows are expanded lazily per queried date, bounded by the
// worker's horizon.
type Service struct {
	store       Store
	horizonDays int
}

func NewService(store Store, horizonDays int) *Service {
	return &Service{
		store:       store,
		horizonDays: horizonDays,
	}
}

// SaveAvailability replaces a staff member's entire window set.
// Writes are gated to the owning staff identity.
func (s *Service) SaveAvailability(ctx context.Context, sess identity.Session, staffID uuid.UUID, windows []AvailabilityWindow) error {
	if !sess.IsStaff() || sess.UserID != staffID {
		return ErrNotScheduleOwner
	}

	exists, err := s.store.StaffExists(ctx, staffID)
	if err != nil {
		return fmt.Errorf("check staff: %w", err)
	}
	if !exists {
		return ErrStaffNotFound
	}

	now := time.Now()
	for i := range windows {
		windows[i].ID = uuid.New()
		windows[i].StaffID = staffID
		if windows[i].Kind == KindDateSpecific {
			windows[i].Date = DayStart(windows[i].Date)
		}
		windows[i].CreatedAt = now
		windows[i].UpdatedAt = now
	}

	if err := ValidateWindowSet(windows); err != nil {
		return err
	}

	// Date windows are already bound to a concrete day, so their slots
	// are generated up front and written in the same transaction.
	var slots []TimeSlot
	for _, w := range windows {
		if w.Kind != KindDateSpecific {
			continue
		}
		expanded, err := Expand(w, w.Date)
		if err != nil {
			return err
		}
		slots = append(slots, newSlotRows(w, expanded, now)...)
	}

	if err := s.store.ReplaceWindows(ctx, staffID, windows, slots); err != nil {
		return fmt.Errorf("replace windows: %w", err)
	}

	return nil
}

// Windows returns the staff member's current window set for the editor.
func (s *Service) Windows(ctx context.Context, sess identity.Session, staffID uuid.UUID) ([]AvailabilityWindow, error) {
	if !sess.IsStaff() || sess.UserID != staffID {
		return nil, ErrNotScheduleOwner
	}

	windows, err := s.store.ListWindows(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

// EffectiveWindow resolves the window governing a staff member's day:
// the date-specific override if one exists, else the weekly rule for
// that weekday, else nil.
func (s *Service) EffectiveWindow(ctx context.Context, staffID uuid.UUID, date time.Time) (*AvailabilityWindow, error) {
	day := DayStart(date)

	w, err := s.store.GetDateWindow(ctx, staffID, day)
	if err != nil && !errors.Is(err, ErrWindowNotFound) {
		return nil, fmt.Errorf("load date window: %w", err)
	}
	if w != nil {
		return w, nil
	}

	w, err = s.store.GetWeeklyWindow(ctx, staffID, day.Weekday())
	if err != nil {
		if errors.Is(err, ErrWindowNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load weekly window: %w", err)
	}
	return w, nil
}

// AvailableSlots lists a staff member's open slots for one date,
// materializing the weekly expansion for that date on first access.
func (s *Service) AvailableSlots(ctx context.Context, staffID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	exists, err := s.store.StaffExists(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("check staff: %w", err)
	}
	if !exists {
		return nil, ErrStaffNotFound
	}

	day := DayStart(date)

	if err := s.ensureDay(ctx, staffID, day); err != nil {
		return nil, err
	}

	slots, err := s.store.ListAvailableSlots(ctx, staffID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// ensureDay materializes slots for a weekly window on the given day if
// they are not there yet. Date windows were materialized at save time.
func (s *Service) ensureDay(ctx context.Context, staffID uuid.UUID, day time.Time) error {
	w, err := s.EffectiveWindow(ctx, staffID, day)
	if err != nil {
		return err
	}
	if w == nil || w.Kind != KindWeekly {
		return nil
	}

	populated, err := s.store.HasSlotsForWindow(ctx, w.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("check window slots: %w", err)
	}
	if populated {
		return nil
	}

	expanded, err := Expand(*w, day)
	if err != nil {
		return err
	}
	if len(expanded) == 0 {
		return nil
	}

	// Concurrent readers may race here; InsertSlots skips overlaps.
	if err := s.store.InsertSlots(ctx, newSlotRows(*w, expanded, time.Now())); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}

// ExtendHorizon materializes every weekly window out to the configured
// horizon. Called periodically by the slot worker.
func (s *Service) ExtendHorizon(ctx context.Context, now time.Time) error {
	staffIDs, err := s.store.ListWeeklyStaff(ctx)
	if err != nil {
		return fmt.Errorf("list weekly staff: %w", err)
	}

	start := DayStart(now)
	for _, staffID := range staffIDs {
		for d := 0; d < s.horizonDays; d++ {
			day := start.AddDate(0, 0, d)
			if err := s.ensureDay(ctx, staffID, day); err != nil {
				log.Printf("extend horizon staff=%s day=%s: %v", staffID, day.Format("2006-01-02"), err)
			}
		}
	}

	return nil
}

func newSlotRows(w AvailabilityWindow, times []SlotTime, now time.Time) []TimeSlot {
	slots := make([]TimeSlot, 0, len(times))
	windowID := w.ID
	for _, st := range times {
		slots = append(slots, TimeSlot{
			ID:        uuid.New(),
			StaffID:   w.StaffID,
			WindowID:  &windowID,
			StartTime: st.Start,
			EndTime:   st.End,
			Status:    SlotAvailable,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return slots
}
