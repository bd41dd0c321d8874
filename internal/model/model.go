package model

import "time"

// Occurrence represents a single concrete calendar event instance
// (after recurrence expansion and timezone normalization). It carries
// the raw summary/location text that extraction operates on.
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured accounting timezone.
	Start time.Time
	End   time.Time
}

// Trip is one parsed carpool trip: who drove, who rode along, and where
// the car left from. Created once per successfully extracted occurrence
// and immutable afterwards; the balance fold consumes it.
type Trip struct {
	SourceID string `json:"source_id"`
	UID      string `json:"uid"`

	Driver     string   `json:"driver"`
	Passengers []string `json:"passengers"`

	// Location is the normalized departure location; Destination is
	// filled in by destination matching (the driver's next departure).
	Location    string `json:"location"`
	Destination string `json:"destination,omitempty"`

	AllDay bool      `json:"all_day"`
	Start  time.Time `json:"start"`
}
