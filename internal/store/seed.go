package store

import (
	"fmt"
	"time"

	"github.com/medbook/go-gpc/internal/fhir/stu3"
)

// Seeded catalog identifiers. Fixed so consumers and tests can rely on them.
const (
	OrganizationID     = "A91545"
	PractitionerID     = "ABCD123456"
	PractitionerRoleID = "R0260"
	LocationOneID      = "loc1111"
	LocationTwoID      = "loc2222"
	ServiceOneID       = "918999198999"
	ServiceTwoID       = "118111118111"
	ScheduleOneID      = "sched1111"
	ScheduleTwoID      = "sched2222"
)

// Slot layout: 20 slots of 15 minutes per schedule, starting 09:00 the day
// after the seed time.
const (
	slotsPerSchedule = 20
	slotDuration     = 15 * time.Minute
	firstSlotHour    = 9
)

type catalog struct {
	organizations     map[string]stu3.Organization
	practitioners     map[string]stu3.Practitioner
	practitionerRoles map[string]stu3.PractitionerRole
	locations         map[string]stu3.Location
	services          map[string]stu3.HealthcareService
	schedules         map[string]stu3.Schedule
	slots             map[string]stu3.Slot
}

// buildCatalog generates the full deterministic reference data set. Given the
// same anchor time it always produces identical state.
func buildCatalog(now time.Time) catalog {
	c := catalog{
		organizations:     make(map[string]stu3.Organization),
		practitioners:     make(map[string]stu3.Practitioner),
		practitionerRoles: make(map[string]stu3.PractitionerRole),
		locations:         make(map[string]stu3.Location),
		services:          make(map[string]stu3.HealthcareService),
		schedules:         make(map[string]stu3.Schedule),
		slots:             make(map[string]stu3.Slot),
	}

	c.organizations[OrganizationID] = stu3.Organization{
		ResourceType: "Organization",
		ID:           OrganizationID,
		Name:         "Our Provider Organisation",
		Identifier: []stu3.Identifier{
			{System: stu3.SystemODSOrganizationCode, Value: OrganizationID},
		},
	}

	c.practitioners[PractitionerID] = stu3.Practitioner{
		ResourceType: "Practitioner",
		ID:           PractitionerID,
		Identifier: []stu3.Identifier{
			{System: stu3.SystemSDSUserID, Value: PractitionerID},
		},
		Name: []stu3.HumanName{
			{Use: "official", Family: "Webber", Given: []string{"Libbie"}},
		},
		Gender: "female",
	}

	c.practitionerRoles[PractitionerRoleID] = stu3.PractitionerRole{
		ResourceType: "PractitionerRole",
		ID:           PractitionerRoleID,
		Practitioner: &stu3.Reference{Reference: stu3.FormatReference("Practitioner", PractitionerID)},
		Organization: &stu3.Reference{Reference: stu3.FormatReference("Organization", OrganizationID)},
		Code: []stu3.CodeableConcept{
			{Coding: []stu3.Coding{{
				System:  stu3.SystemSDSRoleProfileID,
				Code:    PractitionerRoleID,
				Display: "General Medical Practitioner",
			}}},
		},
	}

	c.locations[LocationOneID] = stu3.Location{
		ResourceType: "Location",
		ID:           LocationOneID,
		Name:         "Location One",
	}
	c.locations[LocationTwoID] = stu3.Location{
		ResourceType: "Location",
		ID:           LocationTwoID,
		Name:         "Location Two",
	}

	c.services[ServiceOneID] = stu3.HealthcareService{
		ResourceType: "HealthcareService",
		ID:           ServiceOneID,
		Name:         "Service One",
		ProvidedBy:   &stu3.Reference{Reference: stu3.FormatReference("Organization", OrganizationID)},
		Location:     []stu3.Reference{{Reference: stu3.FormatReference("Location", LocationOneID)}},
	}
	c.services[ServiceTwoID] = stu3.HealthcareService{
		ResourceType: "HealthcareService",
		ID:           ServiceTwoID,
		Name:         "Service Two",
		ProvidedBy:   &stu3.Reference{Reference: stu3.FormatReference("Organization", OrganizationID)},
		Location:     []stu3.Reference{{Reference: stu3.FormatReference("Location", LocationTwoID)}},
	}

	c.schedules[ScheduleOneID] = stu3.Schedule{
		ResourceType: "Schedule",
		ID:           ScheduleOneID,
		Actor: []stu3.Reference{
			{Reference: stu3.FormatReference("HealthcareService", ServiceOneID)},
			{Reference: stu3.FormatReference("Practitioner", PractitionerID)},
		},
	}
	c.schedules[ScheduleTwoID] = stu3.Schedule{
		ResourceType: "Schedule",
		ID:           ScheduleTwoID,
		Actor: []stu3.Reference{
			{Reference: stu3.FormatReference("HealthcareService", ServiceTwoID)},
			{Reference: stu3.FormatReference("Practitioner", PractitionerID)},
		},
	}

	firstStart := nextDayAt(now, firstSlotHour)
	seedSlots(c.slots, ScheduleOneID, 1, firstStart)
	seedSlots(c.slots, ScheduleTwoID, 51, firstStart)

	return c
}

// seedSlots creates slotsPerSchedule consecutive free slots on the schedule,
// numbered from firstNum (slot001.., slot051..).
func seedSlots(slots map[string]stu3.Slot, scheduleID string, firstNum int, firstStart time.Time) {
	for i := 0; i < slotsPerSchedule; i++ {
		start := firstStart.Add(time.Duration(i) * slotDuration)
		id := fmt.Sprintf("slot%03d", firstNum+i)
		slots[id] = stu3.Slot{
			ResourceType: "Slot",
			ID:           id,
			Schedule:     &stu3.Reference{Reference: stu3.FormatReference("Schedule", scheduleID)},
			Status:       stu3.SlotStatusFree,
			Start:        start,
			End:          start.Add(slotDuration),
		}
	}
}

// nextDayAt returns hour o'clock UTC on the day after t.
func nextDayAt(t time.Time, hour int) time.Time {
	u := t.UTC().AddDate(0, 0, 1)
	return time.Date(u.Year(), u.Month(), u.Day(), hour, 0, 0, 0, time.UTC)
}
