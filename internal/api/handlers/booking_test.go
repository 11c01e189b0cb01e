package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medbook/go-gpc/internal/api/middleware"
	"github.com/medbook/go-gpc/internal/booking"
	"github.com/medbook/go-gpc/internal/fhir/stu3"
	"github.com/medbook/go-gpc/internal/store"
	"github.com/medbook/go-gpc/internal/validation"
	"github.com/medbook/go-gpc/pkg/idempotency"
)

func newTestHandler(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st := store.New(store.WithClock(func() time.Time {
		return time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	}))
	svc := booking.NewService(validation.NewAppointmentValidator(nil, nil), st, nil, nil, nil)
	inbox := idempotency.NewInbox(idempotency.DefaultInboxConfig(), nil)
	t.Cleanup(inbox.Close)

	h := NewBookingHandler(svc, st, inbox, nil)
	return middleware.RequestID(h.Routes()), st
}

// bookingRequest builds a request body that passes validation.
func bookingRequest(t *testing.T, slotRef string) []byte {
	t.Helper()
	created := time.Now().Add(-time.Hour)
	appt := stu3.Appointment{
		ResourceType: "Appointment",
		Meta:         &stu3.Meta{Profile: []string{stu3.ProfileCareConnectAppointment}},
		Status:       stu3.StatusBooked,
		Created:      &created,
		Slot:         []stu3.Reference{{Reference: slotRef}},
		SupportingInfo: []stu3.Reference{
			{Reference: "#docref1"},
		},
		Participant: []stu3.AppointmentParticipant{{
			Actor: &stu3.Reference{
				Reference: "#pat1",
				Identifier: &stu3.Identifier{
					Use:    "official",
					System: stu3.SystemNHSNumber,
					Value:  "9476719931",
				},
			},
			Status: "accepted",
		}},
		Contained: []stu3.ContainedResource{
			{Patient: &stu3.Patient{
				ResourceType: "Patient",
				ID:           "pat1",
				Meta:         &stu3.Meta{Profile: []string{stu3.ProfileCareConnectPatient}},
				Identifier: []stu3.Identifier{{
					Use:    "official",
					System: stu3.SystemNHSNumber,
					Value:  "9476719931",
					Extension: []stu3.Extension{{
						URL: stu3.ExtensionNHSNumberVerified,
						ValueCodeableConcept: &stu3.CodeableConcept{
							Coding: []stu3.Coding{{
								System: stu3.SystemNHSNumberVerStatus,
								Code:   stu3.NHSNumberVerifiedCode,
							}},
						},
					}},
				}},
				Name:      []stu3.HumanName{{Use: "official", Family: "Carter", Given: []string{"Helen"}}},
				Telecom:   []stu3.ContactPoint{{System: "phone", Value: "01454587554"}},
				Gender:    "female",
				BirthDate: "1952-05-31",
				Address:   []stu3.Address{{PostalCode: "BS34 7RR"}},
			}},
			{DocumentReference: &stu3.DocumentReference{
				ResourceType: "DocumentReference",
				ID:           "docref1",
				Identifier: []stu3.Identifier{
					{System: stu3.SystemRFC4122, Value: "6b9c59dd-675b-4026-98db-f608ef501e6e"},
				},
			}},
		},
	}
	body, err := json.Marshal(appt)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func postAppointment(t *testing.T, h http.Handler, body []byte, requestID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/Appointment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBookResponse(t *testing.T, rec *httptest.ResponseRecorder) BookResponse {
	t.Helper()
	var resp BookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestBookEndpoint(t *testing.T) {
	h, st := newTestHandler(t)

	rec := postAppointment(t, h, bookingRequest(t, "Slot/slot001"), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeBookResponse(t, rec)
	if resp.AppointmentID == "" {
		t.Fatal("expected an appointment id")
	}
	if _, err := st.GetAppointment(resp.AppointmentID); err != nil {
		t.Errorf("appointment not stored: %v", err)
	}
}

func TestBookEndpointInvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postAppointment(t, h, []byte("{not json"), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBookEndpointRejection(t *testing.T) {
	h, st := newTestHandler(t)

	var appt stu3.Appointment
	if err := json.Unmarshal(bookingRequest(t, "Slot/slot001"), &appt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	appt.Slot = nil // critical fault
	body, _ := json.Marshal(appt)

	rec := postAppointment(t, h, body, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decodeBookResponse(t, rec)
	if len(resp.Faults) == 0 {
		t.Error("expected faults in the rejection body")
	}
	if st.CountAppointments() != 0 {
		t.Errorf("store mutated on rejection")
	}
}

func TestBookEndpointUnknownSlot(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postAppointment(t, h, bookingRequest(t, "Slot/slot999"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestBookEndpointConflict(t *testing.T) {
	h, _ := newTestHandler(t)

	if rec := postAppointment(t, h, bookingRequest(t, "Slot/slot001"), ""); rec.Code != http.StatusCreated {
		t.Fatalf("first booking status = %d", rec.Code)
	}
	if rec := postAppointment(t, h, bookingRequest(t, "Slot/slot001"), ""); rec.Code != http.StatusConflict {
		t.Errorf("second booking status = %d, want 409", rec.Code)
	}
}

func TestBookEndpointIdempotentReplay(t *testing.T) {
	h, st := newTestHandler(t)

	body := bookingRequest(t, "Slot/slot002")
	first := postAppointment(t, h, body, "replay-key-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d", first.Code)
	}
	firstResp := decodeBookResponse(t, first)

	// A retry with the same X-Request-ID must not book a second slot.
	second := postAppointment(t, h, body, "replay-key-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") != "true" {
		t.Error("replay header missing")
	}
	secondResp := decodeBookResponse(t, second)
	if secondResp.AppointmentID != firstResp.AppointmentID {
		t.Errorf("replay returned a different appointment: %q vs %q",
			secondResp.AppointmentID, firstResp.AppointmentID)
	}
	if st.CountAppointments() != 1 {
		t.Errorf("CountAppointments() = %d, want 1", st.CountAppointments())
	}
}

func TestGetSlotEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/Slot/slot001", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var slot stu3.Slot
	if err := json.NewDecoder(rec.Body).Decode(&slot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if slot.ID != "slot001" || slot.Status != stu3.SlotStatusFree {
		t.Errorf("slot = %+v", slot)
	}

	req = httptest.NewRequest(http.MethodGet, "/Slot/slot999", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown slot status = %d, want 404", rec.Code)
	}
}

func TestListSlotsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/HealthcareService/"+store.ServiceOneID+"/slots?status=free", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var slots []stu3.Slot
	if err := json.NewDecoder(rec.Body).Decode(&slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != 20 {
		t.Errorf("slots = %d, want 20", len(slots))
	}

	req = httptest.NewRequest(http.MethodGet, "/HealthcareService/unknown/slots", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown service status = %d, want 404", rec.Code)
	}
}

func TestGetAppointmentEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postAppointment(t, h, bookingRequest(t, "Slot/slot001"), "")
	resp := decodeBookResponse(t, rec)

	req := httptest.NewRequest(http.MethodGet, "/Appointment/"+resp.AppointmentID, nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("status = %d", getRec.Code)
	}

	var appt stu3.Appointment
	if err := json.NewDecoder(getRec.Body).Decode(&appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.ID != resp.AppointmentID {
		t.Errorf("appointment id = %q", appt.ID)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	paths := []string{
		"/Organization/" + store.OrganizationID,
		"/Practitioner/" + store.PractitionerID,
		"/PractitionerRole/" + store.PractitionerRoleID,
		"/Location/" + store.LocationOneID,
		"/HealthcareService/" + store.ServiceTwoID,
		"/Schedule/" + store.ScheduleOneID,
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestResetEndpoint(t *testing.T) {
	h, st := newTestHandler(t)

	if rec := postAppointment(t, h, bookingRequest(t, "Slot/slot001"), ""); rec.Code != http.StatusCreated {
		t.Fatalf("booking status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/$reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	if st.CountAppointments() != 0 {
		t.Errorf("appointments survived reset")
	}
	if st.CountFreeSlots() != 40 {
		t.Errorf("free slots after reset = %d, want 40", st.CountFreeSlots())
	}
}
