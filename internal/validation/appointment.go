package validation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/medbook/go-gpc/internal/fhir/stu3"
)

// minCreated is the floor for plausible appointment creation timestamps.
var minCreated = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

// Contained resource cardinality the booking workflow expects: one Patient
// and one DocumentReference.
const (
	containedMin = 2
	containedMax = 2
)

// DocumentReference identifier value length bounds.
const (
	docRefValueLenMin = 5
	docRefValueLenMax = 36
)

// appointmentRule is one independent check over a candidate appointment.
type appointmentRule struct {
	name  string
	check func(*stu3.Appointment) Faults
}

// AppointmentValidator validates a candidate appointment booking request. It
// runs every local rule, delegates contained patients to a PatientValidator
// and the declared profiles to the remote conformance service, and returns
// the aggregate fault list. Stateless apart from the shared remote handle;
// safe for concurrent use.
type AppointmentValidator struct {
	rules   []appointmentRule
	patient *PatientValidator
	remote  RemoteProfileValidator
	logger  *zap.Logger
	now     func() time.Time
}

// NewAppointmentValidator creates an appointment validator. The remote
// validator may be nil, in which case conformance checking is skipped.
func NewAppointmentValidator(remote RemoteProfileValidator, logger *zap.Logger) *AppointmentValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &AppointmentValidator{
		patient: NewPatientValidator(),
		remote:  remote,
		logger:  logger,
		now:     time.Now,
	}
	v.rules = []appointmentRule{
		{"id", v.checkID},
		{"profile", v.checkProfile},
		{"language", v.checkLanguage},
		{"status", v.checkStatus},
		{"slot", v.checkSlot},
		{"created", v.checkCreated},
		{"participants", v.checkParticipants},
		{"supporting-info", v.checkSupportingInfo},
		{"contained", v.checkContained},
		{"document-reference", v.checkDocumentReferences},
	}
	return v
}

// Validate runs the full rule set against the appointment. Every independent
// rule runs to completion so a single call surfaces every problem; a nil
// appointment reports a single Critical fault.
func (v *AppointmentValidator) Validate(ctx context.Context, appt *stu3.Appointment) Faults {
	if appt == nil {
		return Faults{fault(Critical, "appointment is missing")}
	}

	var faults Faults
	for _, rule := range v.rules {
		faults = append(faults, rule.check(appt)...)
	}

	for _, patient := range appt.ContainedPatients() {
		faults = append(faults, v.patient.Validate(patient)...)
	}

	faults = append(faults, v.checkRemoteConformance(ctx, appt)...)

	if len(faults) > 0 {
		v.logger.Debug("appointment validation produced faults",
			zap.Int("count", len(faults)),
			zap.Strings("faults", faults.Strings()))
	}
	return faults
}

func (v *AppointmentValidator) checkID(appt *stu3.Appointment) Faults {
	if appt.ID != "" {
		return Faults{fault(Minor, "appointment id %q must not be supplied by the caller", appt.ID)}
	}
	return nil
}

func (v *AppointmentValidator) checkProfile(appt *stu3.Appointment) Faults {
	profiles := appt.ProfileURIs()
	if len(profiles) == 0 {
		return Faults{fault(Major, "appointment declares no meta.profile")}
	}

	var faults Faults
	expected := false
	for _, uri := range profiles {
		switch {
		case uri == stu3.ProfileCareConnectAppointment:
			expected = true
		case strings.Contains(uri, "/StructureDefinition/"):
			faults = append(faults, fault(Trivial, "appointment declares additional profile %s", uri))
		default:
			faults = append(faults, fault(Critical, "appointment declares unrecognised profile %q", uri))
		}
	}
	if !expected {
		faults = append(faults, fault(Critical, "appointment does not declare profile %s", stu3.ProfileCareConnectAppointment))
	}
	return faults
}

func (v *AppointmentValidator) checkLanguage(appt *stu3.Appointment) Faults {
	switch appt.Language {
	case "", "en", "en-GB":
		return nil
	}
	return Faults{fault(Major, "appointment language %q is not supported", appt.Language)}
}

func (v *AppointmentValidator) checkStatus(appt *stu3.Appointment) Faults {
	if appt.Status == "" {
		return Faults{fault(Major, "appointment has no status")}
	}
	if appt.Status != stu3.StatusBooked {
		return Faults{fault(Major, "appointment status %q must be %q", appt.Status, stu3.StatusBooked)}
	}
	return nil
}

func (v *AppointmentValidator) checkSlot(appt *stu3.Appointment) Faults {
	switch len(appt.Slot) {
	case 0:
		return Faults{fault(Critical, "appointment has no slot reference")}
	case 1:
		// fall through to reference shape check
	default:
		var faults Faults
		faults = append(faults, fault(Major, "appointment references %d slots, expected exactly one", len(appt.Slot)))
		faults = append(faults, v.checkSlotRef(appt.Slot[0])...)
		return faults
	}
	return v.checkSlotRef(appt.Slot[0])
}

func (v *AppointmentValidator) checkSlotRef(ref stu3.Reference) Faults {
	if !strings.Contains(ref.Reference, "Slot/") {
		return Faults{fault(Critical, "slot reference %q is not a Slot reference", ref.Reference)}
	}
	return nil
}

func (v *AppointmentValidator) checkCreated(appt *stu3.Appointment) Faults {
	if appt.Created == nil || appt.Created.IsZero() {
		return Faults{fault(Major, "appointment has no created timestamp")}
	}
	if appt.Created.After(v.now()) {
		return Faults{fault(Major, "appointment created timestamp %s is in the future", appt.Created.Format(time.RFC3339))}
	}
	if appt.Created.Before(minCreated) {
		return Faults{fault(Major, "appointment created timestamp %s predates %s", appt.Created.Format(time.RFC3339), minCreated.Format(time.RFC3339))}
	}
	return nil
}

func (v *AppointmentValidator) checkParticipants(appt *stu3.Appointment) Faults {
	var faults Faults

	switch len(appt.Participant) {
	case 0:
		faults = append(faults, fault(Minor, "appointment has no participants"))
	case 1:
		// expected
	default:
		faults = append(faults, fault(Minor, "appointment has %d participants, expected one", len(appt.Participant)))
	}

	for i := range appt.Participant {
		actor := appt.Participant[i].Actor
		if actor == nil || actor.Identifier == nil {
			continue
		}
		id := actor.Identifier
		if id.Use != "official" {
			faults = append(faults, fault(Major, "participant actor identifier use %q must be official", id.Use))
			continue
		}
		if id.System != stu3.SystemNHSNumber {
			faults = append(faults, fault(Major, "participant actor identifier system %q must be %s", id.System, stu3.SystemNHSNumber))
			continue
		}
		if !nhsNumberPattern.MatchString(id.Value) {
			faults = append(faults, fault(Major, "participant actor identifier value %q must be exactly 10 digits", id.Value))
		}
	}

	faults = append(faults, v.checkPatientLinkage(appt)...)
	return faults
}

// checkPatientLinkage requires at least one participant actor reference to
// resolve to a contained resource. With no participants at all the
// appointment cannot carry a patient, so the fault escalates to Critical.
func (v *AppointmentValidator) checkPatientLinkage(appt *stu3.Appointment) Faults {
	for i := range appt.Participant {
		actor := appt.Participant[i].Actor
		if actor == nil || actor.Reference == "" {
			continue
		}
		if appt.ContainedByID(actor.Reference) != nil {
			return nil
		}
	}
	if len(appt.Participant) == 0 {
		return Faults{fault(Critical, "appointment has no participant resolving to a contained patient")}
	}
	return Faults{fault(Major, "no participant actor reference matches a contained resource")}
}

func (v *AppointmentValidator) checkSupportingInfo(appt *stu3.Appointment) Faults {
	var faults Faults
	switch len(appt.SupportingInfo) {
	case 0:
		return Faults{fault(Major, "appointment has no supporting information reference")}
	case 1:
		// expected
	default:
		faults = append(faults, fault(Minor, "appointment has %d supporting information references, expected one", len(appt.SupportingInfo)))
	}

	for _, ref := range appt.SupportingInfo {
		if appt.ContainedByID(ref.Reference) == nil {
			faults = append(faults, fault(Minor, "supporting information reference %q does not resolve to a contained resource", ref.Reference))
		}
	}
	return faults
}

func (v *AppointmentValidator) checkContained(appt *stu3.Appointment) Faults {
	var faults Faults
	switch {
	case len(appt.Contained) < containedMin:
		faults = append(faults, fault(Major, "appointment contains %d resources, expected at least %d", len(appt.Contained), containedMin))
	case len(appt.Contained) > containedMax:
		faults = append(faults, fault(Minor, "appointment contains %d resources, expected %d", len(appt.Contained), containedMax))
	}

	for i := range appt.Contained {
		if !appt.Contained[i].IsKnownType() {
			faults = append(faults, fault(Major, "contained resource %d must be a Patient or a DocumentReference", i))
		}
	}
	return faults
}

func (v *AppointmentValidator) checkDocumentReferences(appt *stu3.Appointment) Faults {
	var faults Faults
	for i := range appt.Contained {
		docRef := appt.Contained[i].DocumentReference
		if docRef == nil {
			continue
		}

		switch len(docRef.Identifier) {
		case 0:
			faults = append(faults, fault(Major, "contained document reference has no identifier"))
			continue
		case 1:
			// expected
		default:
			faults = append(faults, fault(Minor, "contained document reference has %d identifiers, expected one", len(docRef.Identifier)))
		}

		id := docRef.Identifier[0]
		if id.System != stu3.SystemRFC4122 {
			faults = append(faults, fault(Major, "document reference identifier system %q must be %s", id.System, stu3.SystemRFC4122))
		}
		if len(id.Value) < docRefValueLenMin || len(id.Value) > docRefValueLenMax {
			faults = append(faults, fault(Major, "document reference identifier value length %d must be between %d and %d", len(id.Value), docRefValueLenMin, docRefValueLenMax))
		}
	}
	return faults
}

// checkRemoteConformance delegates to the remote profile validator. A
// transport failure degrades to a single Major fault so the local results
// are still returned.
func (v *AppointmentValidator) checkRemoteConformance(ctx context.Context, appt *stu3.Appointment) Faults {
	if v.remote == nil {
		return nil
	}

	issues, err := v.remote.Validate(ctx, appt)
	if err != nil {
		v.logger.Warn("remote profile validation unavailable", zap.Error(err))
		return Faults{fault(Major, "validation service unreachable")}
	}

	var faults Faults
	for _, issue := range issues {
		switch issue.Severity {
		case IssueSeverityError:
			faults = append(faults, fault(Major, "profile conformance: %s", issue.Detail))
		case IssueSeverityFatal, IssueSeverityWarning:
			faults = append(faults, fault(Critical, "profile conformance: %s", issue.Detail))
		}
	}
	return faults
}
