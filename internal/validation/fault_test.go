package validation

import (
	"reflect"
	"testing"
)

func TestSeverityString(t *testing.T) {
	cases := []struct {
		severity Severity
		want     string
	}{
		{Trivial, "TRIVIAL"},
		{Minor, "MINOR"},
		{Major, "MAJOR"},
		{Critical, "CRITICAL"},
		{Severity(42), "SEVERITY(42)"},
	}
	for _, tc := range cases {
		if got := tc.severity.String(); got != tc.want {
			t.Errorf("Severity(%d).String() = %q, want %q", int(tc.severity), got, tc.want)
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(Trivial < Minor && Minor < Major && Major < Critical) {
		t.Fatal("severity ordering broken")
	}
}

func TestFaultString(t *testing.T) {
	f := Fault{Description: "patient has no address", Severity: Major}
	if got := f.String(); got != "MAJOR patient has no address" {
		t.Errorf("Fault.String() = %q", got)
	}
}

func TestFaultsHasSeverity(t *testing.T) {
	faults := Faults{
		{Description: "a", Severity: Trivial},
		{Description: "b", Severity: Major},
	}

	if !faults.HasSeverity(Trivial) {
		t.Error("expected HasSeverity(Trivial)")
	}
	if !faults.HasSeverity(Major) {
		t.Error("expected HasSeverity(Major)")
	}
	if faults.HasSeverity(Critical) {
		t.Error("did not expect HasSeverity(Critical)")
	}
	if (Faults{}).HasSeverity(Trivial) {
		t.Error("empty list must not report any severity")
	}
}

func TestFaultsMax(t *testing.T) {
	if _, ok := (Faults{}).Max(); ok {
		t.Error("empty list must report no maximum")
	}

	faults := Faults{
		{Description: "a", Severity: Minor},
		{Description: "b", Severity: Critical},
		{Description: "c", Severity: Major},
	}
	max, ok := faults.Max()
	if !ok || max != Critical {
		t.Errorf("Max() = %v, %v; want Critical, true", max, ok)
	}
}

func TestFaultsStrings(t *testing.T) {
	faults := Faults{
		{Description: "first", Severity: Minor},
		{Description: "second", Severity: Critical},
	}
	want := []string{"MINOR first", "CRITICAL second"}
	if got := faults.Strings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Strings() = %v, want %v", got, want)
	}
}
