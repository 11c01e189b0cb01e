// Package validation implements the booking data-quality rules. A validator
// inspects a candidate resource and returns every problem it finds as a
// severity-classified Fault; it never aborts on the first failure and never
// treats bad input as an error.
package validation

import "fmt"

// Severity classifies the impact of a fault, ordered from least to most severe.
type Severity int

const (
	Trivial Severity = iota
	Minor
	Major
	Critical
)

// String returns the upper-case severity label.
func (s Severity) String() string {
	switch s {
	case Trivial:
		return "TRIVIAL"
	case Minor:
		return "MINOR"
	case Major:
		return "MAJOR"
	case Critical:
		return "CRITICAL"
	}
	return fmt.Sprintf("SEVERITY(%d)", int(s))
}

// Fault is a single reported validation problem. Immutable value.
type Fault struct {
	Description string
	Severity    Severity
}

// String renders the fault as "<SEVERITY> <description>".
func (f Fault) String() string {
	return f.Severity.String() + " " + f.Description
}

// Faults is an ordered list of faults with policy helpers for callers.
type Faults []Fault

// HasSeverity reports whether any fault is at or above the given severity.
func (fs Faults) HasSeverity(min Severity) bool {
	for _, f := range fs {
		if f.Severity >= min {
			return true
		}
	}
	return false
}

// Max returns the highest severity present. The second return is false when
// the list is empty.
func (fs Faults) Max() (Severity, bool) {
	if len(fs) == 0 {
		return Trivial, false
	}
	max := fs[0].Severity
	for _, f := range fs[1:] {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max, true
}

// Strings renders every fault for logging or API responses.
func (fs Faults) Strings() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

func fault(sev Severity, format string, args ...interface{}) Fault {
	return Fault{Description: fmt.Sprintf(format, args...), Severity: sev}
}
