package domain

import "strings"

// Reason enumerates why a raw payload, or one of its locations, failed validation.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingLocations     Reason = "missing_locations"
	ReasonEmptyLocations       Reason = "empty_locations"
	ReasonMissingLocationName  Reason = "missing_location_name"
	ReasonMissingAttributeList Reason = "missing_attribute_list"
	ReasonMissingReference     Reason = "missing_reference_attribute"
)

// LocationIssue reports a location excluded from a valid payload.
type LocationIssue struct {
	Index  int    `json:"index"`
	Name   string `json:"name,omitempty"`
	Reason Reason `json:"reason"`
}

// Validation is the outcome of Validate. When Reason is ReasonNone the
// payload is valid and Locations holds every location that passed.
type Validation struct {
	Reason    Reason
	Locations []Location
	Issues    []LocationIssue
}

// Location is a validated location with a name and an element list.
type Location struct {
	Index    int
	Name     string
	Elements []RawElement
}

// Valid reports whether the payload passed top-level validation.
func (v Validation) Valid() bool { return v.Reason == ReasonNone }

// Validate checks the shape of a raw payload before any parsing. It never
// panics: malformation is returned as a reason, not raised.
func Validate(resp RawForecastResponse) Validation {
	recs := resp.records()
	if recs == nil || recs.Location == nil {
		return Validation{Reason: ReasonMissingLocations}
	}
	if len(recs.Location) == 0 {
		return Validation{Reason: ReasonEmptyLocations}
	}

	v := Validation{Locations: make([]Location, 0, len(recs.Location))}
	for i, loc := range recs.Location {
		if loc.LocationName == nil || strings.TrimSpace(*loc.LocationName) == "" {
			v.Issues = append(v.Issues, LocationIssue{Index: i, Reason: ReasonMissingLocationName})
			continue
		}
		name := strings.TrimSpace(*loc.LocationName)
		if loc.WeatherElement == nil {
			v.Issues = append(v.Issues, LocationIssue{Index: i, Name: name, Reason: ReasonMissingAttributeList})
			continue
		}
		v.Locations = append(v.Locations, Location{Index: i, Name: name, Elements: loc.WeatherElement})
	}
	return v
}
