package domain

import (
	"strings"
	"time"
)

// ElementTemperature is the air temperature series of the observation feeds.
const ElementTemperature = "TEMP"

// Feed is the record shape a CWA dataset produces.
type Feed string

const (
	// FeedForecast datasets yield ForecastPeriods keyed (location, startTime).
	FeedForecast Feed = "forecast"
	// FeedReadings datasets yield instantaneous Readings keyed (location, observationTime).
	FeedReadings Feed = "readings"
)

var readingDatasets = map[string]bool{
	"F-A0010-001": true,
}

// FeedFor returns the feed shape of a CWA dataset id. Unknown ids are forecasts.
func FeedFor(dataset string) Feed {
	if readingDatasets[strings.ToUpper(strings.TrimSpace(dataset))] {
		return FeedReadings
	}
	return FeedForecast
}

// Reading is one instantaneous value of a single element at one location.
type Reading struct {
	Location        string `json:"location"`
	ObservationTime string `json:"observation_time"`
	Value           string `json:"value"`
}

// Key returns the natural key used for storage.
func (r Reading) Key() string {
	return r.Location + "|" + r.ObservationTime
}

// Complete reports whether the reading carries the fields required to key it.
func (r Reading) Complete() bool {
	loc := strings.TrimSpace(r.Location)
	at := strings.TrimSpace(r.ObservationTime)
	return loc != "" && at != "" && at != Unavailable
}

// StoredReading is a persisted reading.
type StoredReading struct {
	Reading
	FetchedAt time.Time `json:"fetched_at"`
}

// ReadingResult holds the readings and diagnostics of one parse pass.
type ReadingResult struct {
	Readings    []Reading    `json:"readings"`
	Reason      Reason       `json:"reason,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Valid reports whether the payload passed top-level validation.
func (r ReadingResult) Valid() bool { return r.Reason == ReasonNone }

// ReadingNormalizer flattens one element series per location into readings.
// The zero value reads the temperature series ("TEMP").
type ReadingNormalizer struct {
	Element string
}

// NewReadingNormalizer returns a ReadingNormalizer for the given element.
func NewReadingNormalizer(element string) ReadingNormalizer {
	return ReadingNormalizer{Element: strings.TrimSpace(element)}
}

func (n ReadingNormalizer) element() string {
	if n.Element == "" {
		return ElementTemperature
	}
	return n.Element
}

// Normalize validates resp and emits one Reading per entry of the element
// series, in location-then-entry order. Locations without the series are
// reported as ReasonMissingReference.
func (n ReadingNormalizer) Normalize(resp RawForecastResponse) ReadingResult {
	v := Validate(resp)
	if !v.Valid() {
		return ReadingResult{
			Readings:    []Reading{},
			Reason:      v.Reason,
			Diagnostics: invalidDiagnostics(v),
		}
	}

	res := ReadingResult{Readings: []Reading{}, Diagnostics: issueDiagnostics(v)}
	el := n.element()
	for _, loc := range v.Locations {
		entries, ok := BuildIndex(loc.Elements)[el]
		if !ok {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Location: loc.Name,
				Index:    loc.Index,
				Reason:   ReasonMissingReference,
			})
			continue
		}
		for _, e := range entries {
			res.Readings = append(res.Readings, Reading{
				Location:        loc.Name,
				ObservationTime: e.observedAt(),
				Value:           valueOrUnavailable(e, true),
			})
		}
	}
	return res
}

// observedAt is the instant of a reading: startTime, or dataTime when the
// feed only carries that.
func (e TimeEntry) observedAt() string {
	if e.StartTime != "" {
		return e.StartTime
	}
	return e.DataTime
}
