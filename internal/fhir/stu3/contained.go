package stu3

import (
	"encoding/json"
	"fmt"
)

// peekType pulls the resourceType discriminator out of a raw resource.
type peekType struct {
	ResourceType string `json:"resourceType"`
}

// UnmarshalJSON decodes a contained resource by its resourceType discriminator.
// Unknown resource types decode to an empty container rather than failing the
// whole Appointment; the validator reports them as faults.
func (c *ContainedResource) UnmarshalJSON(data []byte) error {
	var head peekType
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("contained resource: %w", err)
	}

	switch head.ResourceType {
	case "Patient":
		var p Patient
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("contained Patient: %w", err)
		}
		c.Patient = &p
	case "DocumentReference":
		var d DocumentReference
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("contained DocumentReference: %w", err)
		}
		c.DocumentReference = &d
	}
	return nil
}

// MarshalJSON encodes whichever resource the container holds.
func (c ContainedResource) MarshalJSON() ([]byte, error) {
	switch {
	case c.Patient != nil:
		return json.Marshal(c.Patient)
	case c.DocumentReference != nil:
		return json.Marshal(c.DocumentReference)
	}
	return []byte("null"), nil
}
