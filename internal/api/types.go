package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smartmed/scheduling/internal/booking"
	"github.com/smartmed/scheduling/internal/schedule"
)

type RangePayload struct {
	Start string `json:"start"` // "09:00"
	End   string `json:"end"`
}

type WindowPayload struct {
	Kind                string         `json:"kind"`                  // "weekly" or "date"
	DayOfWeek           string         `json:"day_of_week,omitempty"` // "Monday".."Sunday", weekly only
	Date                string         `json:"date,omitempty"`        // "2006-01-02", date only
	Ranges              []RangePayload `json:"ranges"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
}

type SaveAvailabilityRequest struct {
	Windows []WindowPayload `json:"windows"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	StaffID   uuid.UUID `json:"staff_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type BookAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	StaffID    string `json:"staff_id"`
	TimeSlotID string `json:"time_slot_id"`
}

type AppointmentResponse struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	StaffID    uuid.UUID `json:"staff_id"`
	TimeSlotID uuid.UUID `json:"time_slot_id"`
	Status     string    `json:"status"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	PatientName string    `json:"patient_name"`
	StaffName   string    `json:"staff_name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

func (p WindowPayload) toWindow() (schedule.AvailabilityWindow, error) {
	w := schedule.AvailabilityWindow{
		SlotDurationMinutes: p.SlotDurationMinutes,
	}

	switch schedule.WindowKind(p.Kind) {
	case schedule.KindWeekly:
		day, ok := weekdayNames[p.DayOfWeek]
		if !ok {
			return w, fmt.Errorf("%w: bad day_of_week %q", schedule.ErrInvalidWindow, p.DayOfWeek)
		}
		w.Kind = schedule.KindWeekly
		w.DayOfWeek = day
	case schedule.KindDateSpecific:
		date, err := time.ParseInLocation("2006-01-02", p.Date, time.Local)
		if err != nil {
			return w, fmt.Errorf("%w: bad date %q", schedule.ErrInvalidWindow, p.Date)
		}
		w.Kind = schedule.KindDateSpecific
		w.Date = date
	default:
		return w, fmt.Errorf("%w: unknown kind %q", schedule.ErrInvalidWindow, p.Kind)
	}

	for _, r := range p.Ranges {
		start, err := schedule.ParseTimeOfDay(r.Start)
		if err != nil {
			return w, fmt.Errorf("%w: %v", schedule.ErrInvalidWindow, err)
		}
		end, err := schedule.ParseTimeOfDay(r.End)
		if err != nil {
			return w, fmt.Errorf("%w: %v", schedule.ErrInvalidWindow, err)
		}
		w.Ranges = append(w.Ranges, schedule.TimeRange{Start: start, End: end})
	}

	return w, nil
}

func toWindowPayload(w schedule.AvailabilityWindow) WindowPayload {
	p := WindowPayload{
		Kind:                string(w.Kind),
		SlotDurationMinutes: w.SlotDurationMinutes,
	}
	switch w.Kind {
	case schedule.KindWeekly:
		p.DayOfWeek = w.DayOfWeek.String()
	case schedule.KindDateSpecific:
		p.Date = w.Date.Format("2006-01-02")
	}
	for _, r := range w.Ranges {
		p.Ranges = append(p.Ranges, RangePayload{Start: r.Start.String(), End: r.End.String()})
	}
	return p
}

func toSlotResponse(s schedule.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		StaffID:   s.StaffID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		PatientID:  a.PatientID,
		StaffID:    a.StaffID,
		TimeSlotID: a.TimeSlotID,
		Status:     string(a.Status),
	}
}

func toDetailResponse(d booking.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		StartTime:           d.StartTime,
		EndTime:             d.EndTime,
		PatientName:         d.PatientName,
		StaffName:           d.StaffName,
	}
}
