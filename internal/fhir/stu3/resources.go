// Package stu3 provides FHIR STU3 data structures for the booking validation engine.
package stu3

import (
	"strings"
	"time"
)

// Patient represents a FHIR STU3 Patient resource. In this domain a Patient
// only ever appears as a contained resource inside an Appointment.
type Patient struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Active       bool           `json:"active,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Gender       string         `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate    string         `json:"birthDate,omitempty"`
	Address      []Address      `json:"address,omitempty"`
}

// GetOfficialName returns the patient's official name, or first available.
func (p *Patient) GetOfficialName() *HumanName {
	for i := range p.Name {
		if p.Name[i].Use == "official" {
			return &p.Name[i]
		}
	}
	if len(p.Name) > 0 {
		return &p.Name[0]
	}
	return nil
}

// DocumentReference represents a contained FHIR STU3 DocumentReference,
// trimmed to the fields the booking workflow exchanges.
type DocumentReference struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Status       string       `json:"status,omitempty"`
	Type         *CodeableConcept `json:"type,omitempty"`
}

// ContainedResource holds exactly one of the resource types an Appointment
// may contain.
type ContainedResource struct {
	Patient           *Patient           `json:"-"`
	DocumentReference *DocumentReference `json:"-"`
}

// ID returns the local id of whichever resource is present.
func (c *ContainedResource) ID() string {
	switch {
	case c.Patient != nil:
		return c.Patient.ID
	case c.DocumentReference != nil:
		return c.DocumentReference.ID
	}
	return ""
}

// IsKnownType reports whether the container holds exactly one supported resource.
func (c *ContainedResource) IsKnownType() bool {
	return (c.Patient != nil) != (c.DocumentReference != nil)
}

// AppointmentParticipant represents a participant in an appointment.
type AppointmentParticipant struct {
	Type     []CodeableConcept `json:"type,omitempty"`
	Actor    *Reference        `json:"actor,omitempty"`
	Required string            `json:"required,omitempty"`
	Status   string            `json:"status,omitempty"`
}

// Appointment represents a FHIR STU3 Appointment resource.
type Appointment struct {
	ResourceType    string                   `json:"resourceType"`
	ID              string                   `json:"id,omitempty"`
	Meta            *Meta                    `json:"meta,omitempty"`
	Language        string                   `json:"language,omitempty"`
	Contained       []ContainedResource      `json:"contained,omitempty"`
	Status          string                   `json:"status,omitempty"`
	Description     string                   `json:"description,omitempty"`
	SupportingInfo  []Reference              `json:"supportingInformation,omitempty"`
	Start           *time.Time               `json:"start,omitempty"`
	End             *time.Time               `json:"end,omitempty"`
	Slot            []Reference              `json:"slot,omitempty"`
	Created         *time.Time               `json:"created,omitempty"`
	Participant     []AppointmentParticipant `json:"participant,omitempty"`
}

// ProfileURIs returns the declared meta.profile entries, never nil checks needed.
func (a *Appointment) ProfileURIs() []string {
	if a.Meta == nil {
		return nil
	}
	return a.Meta.Profile
}

// ContainedByID resolves a local "#id" or bare id against the contained resources.
func (a *Appointment) ContainedByID(ref string) *ContainedResource {
	id := strings.TrimPrefix(ref, "#")
	for i := range a.Contained {
		if a.Contained[i].ID() == id {
			return &a.Contained[i]
		}
	}
	return nil
}

// ContainedPatients returns all contained Patient resources in order.
func (a *Appointment) ContainedPatients() []*Patient {
	var out []*Patient
	for i := range a.Contained {
		if a.Contained[i].Patient != nil {
			out = append(out, a.Contained[i].Patient)
		}
	}
	return out
}

// Slot represents a FHIR STU3 Slot resource: one bookable time window.
type Slot struct {
	ResourceType string     `json:"resourceType"`
	ID           string     `json:"id,omitempty"`
	Schedule     *Reference `json:"schedule,omitempty"`
	Status       string     `json:"status,omitempty"` // free | busy
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
}

// Schedule represents a FHIR STU3 Schedule resource grouping the actors that
// own a set of slots.
type Schedule struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Actor        []Reference `json:"actor,omitempty"`
}

// HasActor reports whether the schedule references the given resource.
func (s *Schedule) HasActor(ref string) bool {
	for _, a := range s.Actor {
		if a.Reference == ref {
			return true
		}
	}
	return false
}

// HealthcareService represents a bookable service offered at a location.
type HealthcareService struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	ProvidedBy   *Reference  `json:"providedBy,omitempty"`
	Location     []Reference `json:"location,omitempty"`
	Name         string      `json:"name,omitempty"`
}

// Practitioner represents a FHIR STU3 Practitioner resource.
type Practitioner struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
}

// PractitionerRole represents a FHIR STU3 PractitionerRole resource.
type PractitionerRole struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Practitioner *Reference        `json:"practitioner,omitempty"`
	Organization *Reference        `json:"organization,omitempty"`
	Code         []CodeableConcept `json:"code,omitempty"`
}

// Organization represents a FHIR STU3 Organization resource.
type Organization struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Name         string       `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
}

// Location represents a FHIR STU3 Location resource.
type Location struct {
	ResourceType string   `json:"resourceType"`
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Address      *Address `json:"address,omitempty"`
}

// ReferenceID strips any "Type/" path prefix from a reference string,
// returning the bare logical id. "Slot/slot003" and "slot003" both resolve
// to "slot003".
func ReferenceID(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

// FormatReference builds a "Type/id" reference string.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}
