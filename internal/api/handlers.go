package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smartmed/scheduling/internal/booking"
	redisclient "github.com/smartmed/scheduling/internal/redis"
	"github.com/smartmed/scheduling/internal/schedule"
)

// Schedule handlers

func saveAvailabilityHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "no_session", "missing session")
			return
		}

		staffID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a valid UUID")
			return
		}

		var req SaveAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		windows := make([]schedule.AvailabilityWindow, 0, len(req.Windows))
		for _, p := range req.Windows {
			win, err := p.toWindow()
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
				return
			}
			windows = append(windows, win)
		}

		if err := svc.SaveAvailability(r.Context(), sess, staffID, windows); err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusNoContent, nil)
	}
}

func getAvailabilityHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "no_session", "missing session")
			return
		}

		staffID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a valid UUID")
			return
		}

		windows, err := svc.Windows(r.Context(), sess, staffID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]WindowPayload, 0, len(windows))
		for _, win := range windows {
			resp = append(resp, toWindowPayload(win))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "id must be a valid UUID")
			return
		}

		date, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted as 2006-01-02")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), staffID, date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Booking handlers

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "no_session", "missing session")
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		staffID, err := uuid.Parse(req.StaffID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.TimeSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_slot_id", "time_slot_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), sess, patientID, staffID, slotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func appointmentTransitionHandler(transition func(r *http.Request, id uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := transition(r, id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return appointmentTransitionHandler(func(r *http.Request, id uuid.UUID) (*booking.Appointment, error) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			return nil, booking.ErrNotAllowed
		}
		return svc.Confirm(r.Context(), sess, id)
	})
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return appointmentTransitionHandler(func(r *http.Request, id uuid.UUID) (*booking.Appointment, error) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			return nil, booking.ErrNotAllowed
		}
		return svc.Cancel(r.Context(), sess, id)
	})
}

func completeAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return appointmentTransitionHandler(func(r *http.Request, id uuid.UUID) (*booking.Appointment, error) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			return nil, booking.ErrNotAllowed
		}
		return svc.Complete(r.Context(), sess, id)
	})
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "no_session", "missing session")
			return
		}

		filter := booking.ListFilter(r.URL.Query().Get("filter"))
		switch filter {
		case booking.FilterUpcoming, booking.FilterPending, booking.FilterPast:
		default:
			writeError(w, http.StatusBadRequest, "invalid_filter", "filter must be one of upcoming, pending, past")
			return
		}

		details, err := svc.ListForUser(r.Context(), sess, filter)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentDetailResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, toDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Error mapping

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
	case errors.Is(err, schedule.ErrNotScheduleOwner):
		writeError(w, http.StatusForbidden, "not_schedule_owner", err.Error())
	case errors.Is(err, schedule.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotAvailable):
		writeError(w, http.StatusConflict, "slot_not_available", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "not_allowed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// Response helpers

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Details: details,
	})
}
