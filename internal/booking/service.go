// Package booking implements the booking workflow: validate the candidate
// appointment, reject on any critical fault without touching the store, then
// book the slot atomically and emit a booking event.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/fhir/stu3"
	"github.com/medbook/go-gpc/internal/observability/metrics"
	"github.com/medbook/go-gpc/internal/store"
	"github.com/medbook/go-gpc/internal/validation"
)

// ErrRejected indicates the appointment failed validation with at least one
// critical fault. The Outcome carries the full fault list.
var ErrRejected = errors.New("appointment rejected by validation")

// Event topics emitted by the workflow.
const (
	TopicAppointmentBooked   = "appointment.booked"
	TopicAppointmentRejected = "appointment.rejected"
)

// EventSink receives booking events for asynchronous publication. A broker
// outage must never fail a booking, so Enqueue is expected to buffer.
type EventSink interface {
	Enqueue(topic, key string, payload []byte) error
}

// Event is the payload published for every booking decision.
type Event struct {
	AppointmentID string    `json:"appointment_id,omitempty"`
	SlotRef       string    `json:"slot_ref,omitempty"`
	Outcome       string    `json:"outcome"` // booked | rejected
	Faults        []string  `json:"faults,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Outcome is the result of one booking attempt.
type Outcome struct {
	AppointmentID string
	Faults        validation.Faults
}

// Service coordinates the validator and the store.
type Service struct {
	validator *validation.AppointmentValidator
	store     *store.Store
	sink      EventSink
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewService creates a booking service. The sink and metrics may be nil.
func NewService(validator *validation.AppointmentValidator, st *store.Store, sink EventSink, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		validator: validator,
		store:     st,
		sink:      sink,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("booking-service"),
	}
}

// Book validates the candidate appointment and, when no critical fault is
// present, books its referenced slot. Non-critical faults are returned
// alongside a successful booking so callers can relay advisories.
func (s *Service) Book(ctx context.Context, appt *stu3.Appointment) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "book_appointment")
	defer span.End()

	started := time.Now()
	faults := s.validator.Validate(ctx, appt)
	s.observeValidation(faults, time.Since(started))
	span.SetAttributes(attribute.Int("fault_count", len(faults)))

	if faults.HasSeverity(validation.Critical) {
		s.logger.Info("booking rejected",
			zap.Int("faults", len(faults)),
			zap.Strings("detail", faults.Strings()))
		if s.metrics != nil {
			s.metrics.BookingsRejected.Inc()
		}
		s.emit(Event{
			Outcome:    "rejected",
			Faults:     faults.Strings(),
			OccurredAt: time.Now().UTC(),
		})
		return &Outcome{Faults: faults}, ErrRejected
	}

	slotRef := appt.Slot[0].Reference
	id, err := s.store.BookSlot(slotRef, appt)
	if err != nil {
		if errors.Is(err, store.ErrSlotAlreadyBooked) && s.metrics != nil {
			s.metrics.BookingConflicts.Inc()
		}
		span.RecordError(err)
		return &Outcome{Faults: faults}, err
	}
	span.SetAttributes(attribute.String("appointment_id", id))

	if s.metrics != nil {
		s.metrics.BookingsAccepted.Inc()
		s.metrics.BookingDuration.Observe(time.Since(started).Seconds())
		s.metrics.FreeSlots.Set(float64(s.store.CountFreeSlots()))
	}

	s.emit(Event{
		AppointmentID: id,
		SlotRef:       slotRef,
		Outcome:       "booked",
		OccurredAt:    time.Now().UTC(),
	})

	return &Outcome{AppointmentID: id, Faults: faults}, nil
}

func (s *Service) observeValidation(faults validation.Faults, took time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ValidationDuration.Observe(took.Seconds())
	for _, f := range faults {
		s.metrics.ValidationFaults.WithLabelValues(strings.ToLower(f.Severity.String())).Inc()
	}
}

func (s *Service) emit(event Event) {
	if s.sink == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal booking event", zap.Error(err))
		return
	}
	topic := TopicAppointmentBooked
	key := event.AppointmentID
	if event.Outcome == "rejected" {
		topic = TopicAppointmentRejected
		key = "rejected"
	}
	if err := s.sink.Enqueue(topic, key, payload); err != nil {
		// Eventing is best-effort; the booking already committed.
		s.logger.Warn("enqueue booking event", zap.Error(err))
	}
}
