package schedule

import (
	"fmt"
	"time"
)

// SlotTime is one generated slot candidate before persistence.
type SlotTime struct {
	Start time.Time
	End   time.Time
}

// Expand resolves an availability window against a concrete calendar
// date and chops each time range into consecutive slots of exactly
// SlotDurationMinutes. A trailing remainder shorter than the duration
// is dropped. The expansion is deterministic: it depends only on the
// window and the date, never on booking state.
func Expand(w AvailabilityWindow, date time.Time) ([]SlotTime, error) {
	if w.SlotDurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive, got %d", ErrInvalidWindow, w.SlotDurationMinutes)
	}

	day := DayStart(date)

	switch w.Kind {
	case KindWeekly:
		if day.Weekday() != w.DayOfWeek {
			return nil, fmt.Errorf("%w: window repeats on %s, date %s is a %s",
				ErrInvalidWindow, w.DayOfWeek, day.Format("2006-01-02"), day.Weekday())
		}
	case KindDateSpecific:
		if !DayStart(w.Date).Equal(day) {
			return nil, fmt.Errorf("%w: window is for %s, not %s",
				ErrInvalidWindow, DayStart(w.Date).Format("2006-01-02"), day.Format("2006-01-02"))
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidWindow, w.Kind)
	}

	duration := time.Duration(w.SlotDurationMinutes) * time.Minute

	var slots []SlotTime
	for _, r := range w.Ranges {
		cursor := r.Start.At(day)
		end := r.End.At(day)

		for !cursor.Add(duration).After(end) {
			slots = append(slots, SlotTime{Start: cursor, End: cursor.Add(duration)})
			cursor = cursor.Add(duration)
		}
	}

	return slots, nil
}
