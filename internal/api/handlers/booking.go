// Package handlers provides HTTP handlers for the booking API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/api/middleware"
	"github.com/medbook/go-gpc/internal/booking"
	"github.com/medbook/go-gpc/internal/fhir/stu3"
	"github.com/medbook/go-gpc/internal/store"
	"github.com/medbook/go-gpc/pkg/idempotency"
)

// BookingHandler handles appointment booking and catalog endpoints
type BookingHandler struct {
	svc    *booking.Service
	store  *store.Store
	inbox  *idempotency.Inbox
	logger *zap.Logger
}

// NewBookingHandler creates a new handler. The inbox may be nil to disable
// idempotent replay of booking POSTs.
func NewBookingHandler(svc *booking.Service, st *store.Store, inbox *idempotency.Inbox, logger *zap.Logger) *BookingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{svc: svc, store: st, inbox: inbox, logger: logger}
}

// Routes returns the handler routes
func (h *BookingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/Appointment", h.Book)
	r.Get("/Appointment", h.ListAppointments)
	r.Get("/Appointment/{id}", h.GetAppointment)
	r.Get("/Slot/{id}", h.GetSlot)
	r.Get("/HealthcareService/{id}", h.GetHealthcareService)
	r.Get("/HealthcareService/{id}/slots", h.ListSlots)
	r.Get("/Schedule/{id}", h.GetSchedule)
	r.Get("/Practitioner/{id}", h.GetPractitioner)
	r.Get("/PractitionerRole/{id}", h.GetPractitionerRole)
	r.Get("/Organization/{id}", h.GetOrganization)
	r.Get("/Location/{id}", h.GetLocation)
	r.Post("/$reset", h.Reset)
	return r
}

// BookResponse is the response for a booking attempt
type BookResponse struct {
	AppointmentID string   `json:"appointment_id,omitempty"`
	Faults        []string `json:"faults,omitempty"`
}

// Book handles POST /Appointment
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("booking-handler")
	ctx, span := tracer.Start(ctx, "book_appointment")
	defer span.End()

	var appt stu3.Appointment
	if err := json.NewDecoder(r.Body).Decode(&appt); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	book := func() (int, BookResponse) {
		outcome, err := h.svc.Book(ctx, &appt)
		switch {
		case errors.Is(err, booking.ErrRejected):
			return http.StatusUnprocessableEntity, BookResponse{Faults: outcome.Faults.Strings()}
		case errors.Is(err, store.ErrNotFound):
			return http.StatusNotFound, BookResponse{Faults: outcome.Faults.Strings()}
		case errors.Is(err, store.ErrSlotAlreadyBooked):
			return http.StatusConflict, BookResponse{Faults: outcome.Faults.Strings()}
		case err != nil:
			h.logger.Error("booking failed", zap.Error(err))
			return http.StatusInternalServerError, BookResponse{}
		}
		span.SetAttributes(attribute.String("appointment_id", outcome.AppointmentID))
		return http.StatusCreated, BookResponse{
			AppointmentID: outcome.AppointmentID,
			Faults:        outcome.Faults.Strings(),
		}
	}

	key := middleware.GetRequestID(ctx)
	if h.inbox == nil || key == "" {
		status, resp := book()
		h.writeJSON(w, status, resp)
		return
	}

	// Replayed requests (same X-Request-ID) get the original outcome back
	// instead of a second booking attempt.
	type cached struct {
		Status int          `json:"status"`
		Body   BookResponse `json:"body"`
	}
	result, err := h.inbox.Process(ctx, key, func(ctx context.Context) (json.RawMessage, error) {
		status, resp := book()
		return json.Marshal(cached{Status: status, Body: resp})
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrMessageInProgress) {
			h.jsonError(w, "request already in progress", http.StatusConflict)
			return
		}
		h.logger.Error("idempotent booking failed", zap.Error(err))
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	var c cached
	if err := json.Unmarshal(result.Result, &c); err != nil {
		h.logger.Error("decode cached booking outcome", zap.Error(err))
		h.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !result.IsNew {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	h.writeJSON(w, c.Status, c.Body)
}

// GetAppointment handles GET /Appointment/{id}
func (h *BookingHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	appt, err := h.store.GetAppointment(id)
	if err != nil {
		h.notFoundOrError(w, err, "appointment not found")
		return
	}
	h.writeJSON(w, http.StatusOK, appt)
}

// ListAppointments handles GET /Appointment
func (h *BookingHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.ListAppointments())
}

// GetSlot handles GET /Slot/{id}
func (h *BookingHandler) GetSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slot, err := h.store.FindSlot(id)
	if err != nil {
		h.notFoundOrError(w, err, "slot not found")
		return
	}
	h.writeJSON(w, http.StatusOK, slot)
}

// ListSlots handles GET /HealthcareService/{id}/slots. The optional status
// query parameter filters by slot status (free or busy).
func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := r.URL.Query().Get("status")
	slots, err := h.store.ListSlotsByHealthcareService(id, status)
	if err != nil {
		h.notFoundOrError(w, err, "healthcare service not found")
		return
	}
	h.writeJSON(w, http.StatusOK, slots)
}

// GetHealthcareService handles GET /HealthcareService/{id}
func (h *BookingHandler) GetHealthcareService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.store.GetHealthcareService(chi.URLParam(r, "id"))
	if err != nil {
		h.notFoundOrError(w, err, "healthcare service not found")
		return
	}
	h.writeJSON(w, http.StatusOK, svc)
}

// GetSchedule handles GET /Schedule/{id}
func (h *BookingHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.store.GetSchedule(chi.URLParam(r, "id"))
	if err != nil {
		h.notFoundOrError(w, err, "schedule not found")
		return
	}
	h.writeJSON(w, http.StatusOK, sched)
}

// GetPractitioner handles GET /Practitioner/{id}
func (h *BookingHandler) GetPractitioner(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetPractitioner(chi.URLParam(r, "id"))
	if err != nil {
		h.notFoundOrError(w, err, "practitioner not found")
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetPractitionerRole handles GET /PractitionerRole/{id}
func (h *BookingHandler) GetPractitionerRole(w http.ResponseWriter, r *http.Request) {
	pr, err := h.store.GetPractitionerRole(chi.URLParam(r, "id"))
	if err != nil {
		h.notFoundOrError(w, err, "practitioner role not found")
		return
	}
	h.writeJSON(w, http.StatusOK, pr)
}

// GetOrganization handles GET /Organization/{id}
func (h *BookingHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.store.GetOrganization(chi.URLParam(r, "id"))
	if err != nil {
		h.notFoundOrError(w, err, "organization not found")
		return
	}
	h.writeJSON(w, http.StatusOK, org)
}

// GetLocation handles GET /Location/{id}
func (h *BookingHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.store.GetLocation(chi.URLParam(r, "id"))
	if err != nil {
		h.notFoundOrError(w, err, "location not found")
		return
	}
	h.writeJSON(w, http.StatusOK, loc)
}

// Reset handles POST /$reset, restoring the seeded catalog and clearing
// booked appointments.
func (h *BookingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.store.Reset()
	h.logger.Info("store reset", zap.String("request_id", middleware.GetRequestID(r.Context())))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *BookingHandler) notFoundOrError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		h.jsonError(w, msg, http.StatusNotFound)
		return
	}
	h.logger.Error("store read failed", zap.Error(err))
	h.jsonError(w, "internal error", http.StatusInternalServerError)
}

func (h *BookingHandler) jsonError(w http.ResponseWriter, msg string, status int) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *BookingHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}
