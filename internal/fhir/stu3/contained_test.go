package stu3

import (
	"encoding/json"
	"testing"
)

const appointmentJSON = `{
	"resourceType": "Appointment",
	"meta": {"profile": ["https://fhir.hl7.org.uk/STU3/StructureDefinition/CareConnect-Appointment-1"]},
	"status": "booked",
	"contained": [
		{
			"resourceType": "DocumentReference",
			"id": "docref1",
			"identifier": [{"system": "https://tools.ietf.org/html/rfc4122", "value": "6b9c59dd-675b-4026-98db-f608ef501e6e"}]
		},
		{
			"resourceType": "Patient",
			"id": "pat1",
			"identifier": [{
				"use": "official",
				"system": "https://fhir.nhs.uk/Id/nhs-number",
				"value": "9476719931",
				"extension": [{
					"url": "https://fhir.hl7.org.uk/STU3/StructureDefinition/Extension-CareConnect-NHSNumberVerificationStatus-1",
					"valueCodeableConcept": {"coding": [{"system": "https://fhir.hl7.org.uk/STU3/CareConnect-NHSNumberVerificationStatus-1", "code": "01"}]}
				}]
			}],
			"name": [{"use": "official", "family": "Carter", "given": ["Helen"]}]
		},
		{
			"resourceType": "Basic",
			"id": "mystery"
		}
	],
	"slot": [{"reference": "Slot/slot001"}],
	"supportingInformation": [{"reference": "#docref1"}],
	"participant": [{"actor": {"reference": "#pat1"}, "status": "accepted"}]
}`

func TestAppointmentUnmarshalContained(t *testing.T) {
	var appt Appointment
	if err := json.Unmarshal([]byte(appointmentJSON), &appt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(appt.Contained) != 3 {
		t.Fatalf("contained = %d, want 3", len(appt.Contained))
	}

	doc := appt.Contained[0].DocumentReference
	if doc == nil || doc.ID != "docref1" {
		t.Fatalf("contained[0] = %+v", appt.Contained[0])
	}
	if doc.Identifier[0].System != SystemRFC4122 {
		t.Errorf("docref identifier system = %q", doc.Identifier[0].System)
	}

	patient := appt.Contained[1].Patient
	if patient == nil || patient.ID != "pat1" {
		t.Fatalf("contained[1] = %+v", appt.Contained[1])
	}
	if patient.Identifier[0].Extension[0].ValueCodeableConcept.Coding[0].Code != NHSNumberVerifiedCode {
		t.Errorf("verification code not decoded")
	}

	// Unknown resource types decode to an empty container; the validator
	// flags them rather than the decoder failing the whole request.
	if appt.Contained[2].IsKnownType() {
		t.Errorf("contained[2] should be unknown, got %+v", appt.Contained[2])
	}
}

func TestContainedResolution(t *testing.T) {
	var appt Appointment
	if err := json.Unmarshal([]byte(appointmentJSON), &appt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := appt.ContainedByID("#pat1"); got == nil || got.Patient == nil {
		t.Error("ContainedByID(#pat1) did not resolve")
	}
	if got := appt.ContainedByID("docref1"); got == nil || got.DocumentReference == nil {
		t.Error("ContainedByID(docref1) did not resolve")
	}
	if appt.ContainedByID("#ghost") != nil {
		t.Error("ContainedByID(#ghost) should not resolve")
	}

	patients := appt.ContainedPatients()
	if len(patients) != 1 || patients[0].ID != "pat1" {
		t.Errorf("ContainedPatients() = %+v", patients)
	}
}

func TestContainedMarshalRoundTrip(t *testing.T) {
	c := ContainedResource{Patient: &Patient{ResourceType: "Patient", ID: "pat9"}}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ContainedResource
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Patient == nil || decoded.Patient.ID != "pat9" {
		t.Errorf("round trip lost the patient: %+v", decoded)
	}
}

func TestReferenceID(t *testing.T) {
	cases := map[string]string{
		"Slot/slot003":          "slot003",
		"slot003":               "slot003",
		"Appointment/abc":       "abc",
		"https://x/Slot/slot01": "slot01",
	}
	for in, want := range cases {
		if got := ReferenceID(in); got != want {
			t.Errorf("ReferenceID(%q) = %q, want %q", in, got, want)
		}
	}
}
