// Package store implements the in-memory slot-lifecycle store. It owns all
// reference data (practitioners, organisations, locations, services,
// schedules, slots) plus live appointments, and is the sole owner of slot
// status: a slot moves from free to busy exactly once, under the store lock.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/fhir/stu3"
)

// Store errors. Callers map these to the appropriate user-facing outcome.
var (
	ErrNotFound          = errors.New("not found")
	ErrSlotAlreadyBooked = errors.New("slot already booked")
)

// Store is the in-memory booking store. All state lives behind a single
// mutex; catalog sizes are small enough that O(n) scans under the lock are
// cheaper than fine-grained locking. Construct with New and share by
// reference; there is no package-level instance.
type Store struct {
	mu sync.RWMutex

	organizations     map[string]stu3.Organization
	practitioners     map[string]stu3.Practitioner
	practitionerRoles map[string]stu3.PractitionerRole
	locations         map[string]stu3.Location
	services          map[string]stu3.HealthcareService
	schedules         map[string]stu3.Schedule
	slots             map[string]stu3.Slot
	appointments      map[string]stu3.Appointment

	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the time source used to anchor the seeded slot windows.
// Used by tests to make Reset reproducible.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an initialized store.
func New(opts ...Option) *Store {
	s := &Store{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Initialize()
	return s
}

// Initialize seeds the deterministic catalog and clears all appointments.
func (s *Store) Initialize() {
	s.Reset()
}

// Reset regenerates the catalog to its deterministic seeded state and drops
// every appointment. Two resets under the same clock produce identical state.
func (s *Store) Reset() {
	catalog := buildCatalog(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.organizations = catalog.organizations
	s.practitioners = catalog.practitioners
	s.practitionerRoles = catalog.practitionerRoles
	s.locations = catalog.locations
	s.services = catalog.services
	s.schedules = catalog.schedules
	s.slots = catalog.slots
	s.appointments = make(map[string]stu3.Appointment)

	s.logger.Info("store reset",
		zap.Int("slots", len(s.slots)),
		zap.Int("schedules", len(s.schedules)))
}

// FindSlot resolves a slot by bare id or "Slot/id" reference.
func (s *Store) FindSlot(ref string) (stu3.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[stu3.ReferenceID(ref)]
	if !ok {
		return stu3.Slot{}, fmt.Errorf("slot %q: %w", ref, ErrNotFound)
	}
	return slot, nil
}

// ListSlotsByHealthcareService returns the slots belonging to schedules run
// by the given healthcare service, optionally filtered by status ("free" or
// "busy"; empty means all). The result is a defensive copy sorted by start
// time then id.
func (s *Store) ListSlotsByHealthcareService(hcsID, status string) ([]stu3.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.services[hcsID]; !ok {
		return nil, fmt.Errorf("healthcare service %q: %w", hcsID, ErrNotFound)
	}

	serviceRef := stu3.FormatReference("HealthcareService", hcsID)
	scheduleIDs := make(map[string]bool)
	for id, sched := range s.schedules {
		if sched.HasActor(serviceRef) {
			scheduleIDs[id] = true
		}
	}

	var out []stu3.Slot
	for _, slot := range s.slots {
		if slot.Schedule == nil || !scheduleIDs[stu3.ReferenceID(slot.Schedule.Reference)] {
			continue
		}
		if status != "" && slot.Status != status {
			continue
		}
		out = append(out, slot)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// BookSlot atomically books the referenced slot for the given appointment:
// it resolves the slot, verifies it is still free, generates the appointment
// id, transitions the slot to busy and stores the appointment, all under the
// store lock. Exactly one of any number of concurrent callers targeting the
// same slot succeeds; the rest observe ErrSlotAlreadyBooked. The supplied
// appointment is not mutated.
func (s *Store) BookSlot(slotRef string, appt *stu3.Appointment) (string, error) {
	if appt == nil {
		return "", errors.New("appointment is required")
	}

	slotID := stu3.ReferenceID(slotRef)

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return "", fmt.Errorf("slot %q: %w", slotRef, ErrNotFound)
	}
	if slot.Status != stu3.SlotStatusFree {
		return "", fmt.Errorf("slot %q: %w", slotRef, ErrSlotAlreadyBooked)
	}

	id := uuid.New().String()

	stored := cloneAppointment(appt)
	stored.ID = id
	stored.Slot = []stu3.Reference{{Reference: stu3.FormatReference("Slot", slotID)}}

	slot.Status = stu3.SlotStatusBusy
	s.slots[slotID] = slot
	s.appointments[id] = stored

	s.logger.Info("slot booked",
		zap.String("slot_id", slotID),
		zap.String("appointment_id", id))
	return id, nil
}

// GetAppointment resolves an appointment by bare id or "Appointment/id"
// reference.
func (s *Store) GetAppointment(ref string) (stu3.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.appointments[stu3.ReferenceID(ref)]
	if !ok {
		return stu3.Appointment{}, fmt.Errorf("appointment %q: %w", ref, ErrNotFound)
	}
	return cloneAppointment(&appt), nil
}

// ListAppointments returns a snapshot of every stored appointment, sorted by
// id for stable output.
func (s *Store) ListAppointments() []stu3.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]stu3.Appointment, 0, len(s.appointments))
	for _, appt := range s.appointments {
		out = append(out, cloneAppointment(&appt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountAppointments returns the number of stored appointments.
func (s *Store) CountAppointments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appointments)
}

// CountFreeSlots returns the number of slots still free.
func (s *Store) CountFreeSlots() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, slot := range s.slots {
		if slot.Status == stu3.SlotStatusFree {
			n++
		}
	}
	return n
}

// GetSchedule looks up a schedule by id.
func (s *Store) GetSchedule(id string) (stu3.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return stu3.Schedule{}, fmt.Errorf("schedule %q: %w", id, ErrNotFound)
	}
	sched.Actor = append([]stu3.Reference(nil), sched.Actor...)
	return sched, nil
}

// GetHealthcareService looks up a healthcare service by id.
func (s *Store) GetHealthcareService(id string) (stu3.HealthcareService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return stu3.HealthcareService{}, fmt.Errorf("healthcare service %q: %w", id, ErrNotFound)
	}
	svc.Location = append([]stu3.Reference(nil), svc.Location...)
	return svc, nil
}

// GetPractitioner looks up a practitioner by id.
func (s *Store) GetPractitioner(id string) (stu3.Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.practitioners[id]
	if !ok {
		return stu3.Practitioner{}, fmt.Errorf("practitioner %q: %w", id, ErrNotFound)
	}
	return p, nil
}

// GetPractitionerRole looks up a practitioner role by id.
func (s *Store) GetPractitionerRole(id string) (stu3.PractitionerRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.practitionerRoles[id]
	if !ok {
		return stu3.PractitionerRole{}, fmt.Errorf("practitioner role %q: %w", id, ErrNotFound)
	}
	return r, nil
}

// GetOrganization looks up an organization by id.
func (s *Store) GetOrganization(id string) (stu3.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.organizations[id]
	if !ok {
		return stu3.Organization{}, fmt.Errorf("organization %q: %w", id, ErrNotFound)
	}
	return o, nil
}

// GetLocation looks up a location by id.
func (s *Store) GetLocation(id string) (stu3.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok {
		return stu3.Location{}, fmt.Errorf("location %q: %w", id, ErrNotFound)
	}
	return l, nil
}

// cloneAppointment returns a copy with its own slice headers so neither the
// caller nor the store can mutate the other's view.
func cloneAppointment(a *stu3.Appointment) stu3.Appointment {
	out := *a
	out.Contained = append([]stu3.ContainedResource(nil), a.Contained...)
	out.Slot = append([]stu3.Reference(nil), a.Slot...)
	out.SupportingInfo = append([]stu3.Reference(nil), a.SupportingInfo...)
	out.Participant = append([]stu3.AppointmentParticipant(nil), a.Participant...)
	return out
}
