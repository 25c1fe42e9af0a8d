package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidWindow = errors.New("invalid availability window")

// ValidateWindow checks a single window's internal invariants: a
// positive slot duration, start < end for every range, and no
// overlapping ranges.
func ValidateWindow(w AvailabilityWindow) error {
	if w.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%w: slot duration must be positive, got %d", ErrInvalidWindow, w.SlotDurationMinutes)
	}

	switch w.Kind {
	case KindWeekly:
		if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
			return fmt.Errorf("%w: bad weekday %d", ErrInvalidWindow, w.DayOfWeek)
		}
	case KindDateSpecific:
		if w.Date.IsZero() {
			return fmt.Errorf("%w: date window without a date", ErrInvalidWindow)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidWindow, w.Kind)
	}

	if len(w.Ranges) == 0 {
		return fmt.Errorf("%w: no time ranges", ErrInvalidWindow)
	}

	for _, r := range w.Ranges {
		if r.Start >= r.End {
			return fmt.Errorf("%w: range %s-%s has start >= end", ErrInvalidWindow, r.Start, r.End)
		}
	}

	sorted := make([]TimeRange, len(w.Ranges))
	copy(sorted, w.Ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return fmt.Errorf("%w: ranges %s-%s and %s-%s overlap",
				ErrInvalidWindow,
				sorted[i-1].Start, sorted[i-1].End,
				sorted[i].Start, sorted[i].End)
		}
	}

	return nil
}

// ValidateWindowSet checks invariants across one staff member's full
// window set: at most one weekly window per weekday and at most one
// date window per calendar date.
func ValidateWindowSet(windows []AvailabilityWindow) error {
	weekdays := make(map[time.Weekday]bool)
	dates := make(map[string]bool)

	for _, w := range windows {
		if err := ValidateWindow(w); err != nil {
			return err
		}

		switch w.Kind {
		case KindWeekly:
			if weekdays[w.DayOfWeek] {
				return fmt.Errorf("%w: duplicate weekly window for %s", ErrInvalidWindow, w.DayOfWeek)
			}
			weekdays[w.DayOfWeek] = true
		case KindDateSpecific:
			key := DayStart(w.Date).Format("2006-01-02")
			if dates[key] {
				return fmt.Errorf("%w: duplicate date window for %s", ErrInvalidWindow, key)
			}
			dates[key] = true
		}
	}

	return nil
}
