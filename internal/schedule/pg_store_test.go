package schedule

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PgStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgStore(mock)
}

func windowColumns() []string {
	return []string{"id", "staff_id", "kind", "day_of_week", "date", "ranges", "slot_duration_minutes", "created_at", "updated_at"}
}

func slotColumns() []string {
	return []string{"id", "staff_id", "window_id", "start_time", "end_time", "status", "exception", "created_at", "updated_at"}
}

func TestPgGetWeeklyWindow(t *testing.T) {
	mock, store := newMockStore(t)

	staffID := uuid.New()
	ranges, err := json.Marshal([]TimeRange{{Start: 9 * 60, End: 12 * 60}})
	require.NoError(t, err)
	now := time.Now()
	day := int16(time.Wednesday)

	mock.ExpectQuery(regexp.QuoteMeta("kind = 'weekly'")).
		WithArgs(staffID, int16(time.Wednesday)).
		WillReturnRows(pgxmock.NewRows(windowColumns()).
			AddRow(uuid.New(), staffID, "weekly", &day, (*time.Time)(nil), ranges, 30, now, now))

	w, err := store.GetWeeklyWindow(context.Background(), staffID, time.Wednesday)
	require.NoError(t, err)
	assert.Equal(t, KindWeekly, w.Kind)
	assert.Equal(t, time.Wednesday, w.DayOfWeek)
	require.Len(t, w.Ranges, 1)
	assert.Equal(t, "09:00", w.Ranges[0].Start.String())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetDateWindowNotFound(t *testing.T) {
	mock, store := newMockStore(t)

	staffID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("kind = 'date'")).
		WithArgs(staffID, testDay).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetDateWindow(context.Background(), staffID, testDay)
	assert.ErrorIs(t, err, ErrWindowNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAvailableSlots(t *testing.T) {
	mock, store := newMockStore(t)

	staffID := uuid.New()
	windowID := uuid.New()
	now := time.Now()
	dayEnd := testDay.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'available'")).
		WithArgs(staffID, testDay, dayEnd).
		WillReturnRows(pgxmock.NewRows(slotColumns()).
			AddRow(uuid.New(), staffID, &windowID, testDay.Add(9*time.Hour), testDay.Add(9*time.Hour+30*time.Minute), "available", false, now, now).
			AddRow(uuid.New(), staffID, &windowID, testDay.Add(10*time.Hour), testDay.Add(10*time.Hour+30*time.Minute), "available", false, now, now))

	slots, err := store.ListAvailableSlots(context.Background(), staffID, testDay, dayEnd)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, SlotAvailable, slots[0].Status)
	assert.True(t, slots[0].StartTime.Before(slots[1].StartTime))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReplaceWindows(t *testing.T) {
	mock, store := newMockStore(t)

	staffID := uuid.New()
	now := time.Now()
	windowID := uuid.New()

	window := AvailabilityWindow{
		ID:                  windowID,
		StaffID:             staffID,
		Kind:                KindDateSpecific,
		Date:                testDay,
		Ranges:              []TimeRange{{Start: 9 * 60, End: 10 * 60}},
		SlotDurationMinutes: 60,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	slot := TimeSlot{
		ID:        uuid.New(),
		StaffID:   staffID,
		WindowID:  &windowID,
		StartTime: testDay.Add(9 * time.Hour),
		EndTime:   testDay.Add(10 * time.Hour),
		Status:    SlotAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availability_windows")).
		WithArgs(staffID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM time_slots")).
		WithArgs(staffID).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(regexp.QuoteMeta("SET exception = TRUE")).
		WithArgs(staffID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_windows")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Candidate does not match a booked slot, so it is inserted.
	mock.ExpectExec(regexp.QuoteMeta("status = 'booked'")).
		WithArgs(&windowID, staffID, slot.StartTime, slot.EndTime).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_slots")).
		WithArgs(slot.ID, staffID, &windowID, slot.StartTime, slot.EndTime, slot.Status, slot.CreatedAt, slot.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.ReplaceWindows(context.Background(), staffID, []AvailabilityWindow{window}, []TimeSlot{slot})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStaffExists(t *testing.T) {
	mock, store := newMockStore(t)

	staffID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(staffID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.StaffExists(context.Background(), staffID)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, mock.ExpectationsWereMet())
}
