package validation

import (
	"regexp"
	"strings"
	"time"

	"github.com/medbook/go-gpc/internal/fhir/stu3"
)

// Patterns the patient rules match free-text values against.
var (
	nhsNumberPattern  = regexp.MustCompile(`^\d{10}$`)
	ukPhonePattern    = regexp.MustCompile(`^(?:\+44|0)(?:\s?\d){9,10}$`)
	emailPattern      = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	ukPostcodePattern = regexp.MustCompile(`(?i)^[A-Z]{1,2}\d[A-Z\d]?\s?\d[A-Z]{2}$`)
)

// Name length bounds applied to family and given names.
const (
	nameLenMin = 3
	nameLenMax = 12
)

// earliestBirthDate is the floor for plausible birth dates.
var earliestBirthDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// patientRule is one independent check over a contained Patient.
type patientRule struct {
	name  string
	check func(*stu3.Patient) Faults
}

// PatientValidator validates a contained Patient resource against the
// registration data-quality rules. Stateless and safe for concurrent use.
type PatientValidator struct {
	rules []patientRule
	now   func() time.Time
}

// NewPatientValidator creates a patient validator with the full rule set.
func NewPatientValidator() *PatientValidator {
	v := &PatientValidator{now: time.Now}
	v.rules = []patientRule{
		{"id", v.checkID},
		{"profile", v.checkProfile},
		{"nhs-number", v.checkNHSNumber},
		{"names", v.checkNames},
		{"telecom", v.checkTelecom},
		{"gender", v.checkGender},
		{"birth-date", v.checkBirthDate},
		{"address", v.checkAddress},
	}
	return v
}

// Validate runs every rule and returns the aggregate fault list. All rules
// run to completion; a nil patient reports a single Critical fault.
func (v *PatientValidator) Validate(patient *stu3.Patient) Faults {
	if patient == nil {
		return Faults{fault(Critical, "contained patient is missing")}
	}

	var faults Faults
	for _, rule := range v.rules {
		faults = append(faults, rule.check(patient)...)
	}
	return faults
}

func (v *PatientValidator) checkID(p *stu3.Patient) Faults {
	if p.ID == "" {
		return Faults{fault(Major, "contained patient has no id")}
	}
	if strings.Contains(p.ID, "/") {
		return Faults{fault(Major, "contained patient id %q must be a local id", p.ID)}
	}
	return nil
}

func (v *PatientValidator) checkProfile(p *stu3.Patient) Faults {
	if p.Meta == nil || len(p.Meta.Profile) == 0 {
		return Faults{fault(Major, "contained patient declares no meta.profile")}
	}
	for _, uri := range p.Meta.Profile {
		if uri == stu3.ProfileCareConnectPatient {
			return nil
		}
	}
	return Faults{fault(Major, "contained patient does not declare profile %s", stu3.ProfileCareConnectPatient)}
}

// checkNHSNumber requires exactly one verified NHS number identifier:
// use=official, the NHS number system, a single verification-status extension
// carrying code 01, and a 10-digit value.
func (v *PatientValidator) checkNHSNumber(p *stu3.Patient) Faults {
	verified := 0
	for i := range p.Identifier {
		if isVerifiedNHSNumber(&p.Identifier[i]) {
			verified++
		}
	}
	switch verified {
	case 0:
		return Faults{fault(Critical, "patient has no verified NHS number identifier")}
	case 1:
		return nil
	default:
		return Faults{fault(Critical, "patient has %d verified NHS number identifiers, expected exactly one", verified)}
	}
}

func isVerifiedNHSNumber(id *stu3.Identifier) bool {
	if id.Use != "official" || id.System != stu3.SystemNHSNumber {
		return false
	}
	if !nhsNumberPattern.MatchString(id.Value) {
		return false
	}
	if len(id.Extension) != 1 {
		return false
	}
	ext := id.Extension[0]
	if ext.URL != stu3.ExtensionNHSNumberVerified || ext.ValueCodeableConcept == nil {
		return false
	}
	for _, coding := range ext.ValueCodeableConcept.Coding {
		if coding.System == stu3.SystemNHSNumberVerStatus && coding.Code == stu3.NHSNumberVerifiedCode {
			return true
		}
	}
	return false
}

func (v *PatientValidator) checkNames(p *stu3.Patient) Faults {
	if len(p.Name) == 0 {
		return Faults{fault(Critical, "patient has no name")}
	}

	var faults Faults
	official := 0
	for i := range p.Name {
		name := &p.Name[i]
		isOfficial := name.Use == "official"
		if isOfficial {
			official++
		}

		if name.Family == "" {
			if isOfficial {
				faults = append(faults, fault(Critical, "official patient name has no family name"))
			} else {
				faults = append(faults, fault(Minor, "patient name has no family name"))
			}
		} else if len(name.Family) < nameLenMin || len(name.Family) > nameLenMax {
			faults = append(faults, fault(Minor, "family name %q length must be between %d and %d", name.Family, nameLenMin, nameLenMax))
		}

		for _, given := range name.Given {
			if len(given) < nameLenMin || len(given) > nameLenMax {
				faults = append(faults, fault(Minor, "given name %q length must be between %d and %d", given, nameLenMin, nameLenMax))
			}
		}
	}
	if official == 0 {
		faults = append(faults, fault(Major, "patient has no official name"))
	}
	return faults
}

func (v *PatientValidator) checkTelecom(p *stu3.Patient) Faults {
	if len(p.Telecom) == 0 {
		return Faults{fault(Major, "patient has no telecom contact")}
	}

	var faults Faults
	for _, tc := range p.Telecom {
		switch tc.System {
		case "email":
			if !emailPattern.MatchString(tc.Value) {
				faults = append(faults, fault(Major, "patient email %q is not a valid email address", tc.Value))
			}
		default:
			// Everything else in this domain is a phone-style contact.
			if !ukPhonePattern.MatchString(tc.Value) {
				faults = append(faults, fault(Major, "patient phone number %q is not a valid UK number", tc.Value))
			}
		}
	}
	return faults
}

func (v *PatientValidator) checkGender(p *stu3.Patient) Faults {
	switch p.Gender {
	case "male", "female":
		return nil
	case "other", "unknown", "":
		return Faults{fault(Minor, "patient gender %q requires manual review", p.Gender)}
	default:
		return Faults{fault(Major, "patient gender %q is not a recognised administrative gender", p.Gender)}
	}
}

func (v *PatientValidator) checkBirthDate(p *stu3.Patient) Faults {
	if p.BirthDate == "" {
		return Faults{fault(Major, "patient has no birth date")}
	}
	born, err := time.Parse("2006-01-02", p.BirthDate)
	if err != nil {
		return Faults{fault(Major, "patient birth date %q is not a valid date", p.BirthDate)}
	}
	if born.After(v.now()) {
		return Faults{fault(Critical, "patient birth date %s is in the future", p.BirthDate)}
	}
	if born.Before(earliestBirthDate) {
		return Faults{fault(Major, "patient birth date %s is before 1900", p.BirthDate)}
	}
	return nil
}

func (v *PatientValidator) checkAddress(p *stu3.Patient) Faults {
	if len(p.Address) == 0 {
		return Faults{fault(Major, "patient has no address")}
	}

	var faults Faults
	for _, addr := range p.Address {
		if addr.PostalCode == "" {
			faults = append(faults, fault(Critical, "patient address has no postcode"))
			continue
		}
		if !ukPostcodePattern.MatchString(addr.PostalCode) {
			faults = append(faults, fault(Major, "patient postcode %q is not a valid UK postcode", addr.PostalCode))
		}
	}
	return faults
}
