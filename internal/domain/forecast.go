package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Unavailable marks a forecast field with no data for the period. It is
// display text, never a numeric zero.
const Unavailable = "N/A"

// Tracked CWA element names.
const (
	ElementWeather       = "Wx"
	ElementPrecipitation = "PoP"
	ElementMinTemp       = "MinT"
	ElementMaxTemp       = "MaxT"
)

// RawForecastResponse is a decoded CWA payload. The REST datastore nests
// locations under "records"; the file API (e.g. F-A0010-001) nests them under
// "cwbopendata.dataset". Every level is optional: nil slices and pointers mean
// the key was absent or null.
type RawForecastResponse struct {
	Success     string       `json:"success,omitempty"`
	Records     *RawRecords  `json:"records,omitempty"`
	CWBOpenData *RawOpenData `json:"cwbopendata,omitempty"`
}

// RawOpenData is the file API envelope.
type RawOpenData struct {
	Dataset *RawRecords `json:"dataset"`
}

// records returns the location container of whichever envelope is present,
// preferring the datastore one.
func (r RawForecastResponse) records() *RawRecords {
	if r.Records != nil {
		return r.Records
	}
	if r.CWBOpenData != nil {
		return r.CWBOpenData.Dataset
	}
	return nil
}

// RawRecords wraps the location list.
type RawRecords struct {
	DatasetDescription string        `json:"datasetDescription,omitempty"`
	Location           []RawLocation `json:"location"`
}

// RawLocation is one location block with its element series.
type RawLocation struct {
	LocationName   *string      `json:"locationName"`
	WeatherElement []RawElement `json:"weatherElement"`
}

// RawElement is one named attribute series, e.g. "Wx" or "MinT".
type RawElement struct {
	ElementName string      `json:"elementName"`
	Time        []TimeEntry `json:"time"`
}

// TimeEntry is a single period of an element series. StartTime and EndTime
// are opaque and only ever compared for equality. Instantaneous readings may
// carry DataTime instead of StartTime.
type TimeEntry struct {
	StartTime    string         `json:"startTime"`
	EndTime      string         `json:"endTime"`
	DataTime     string         `json:"dataTime,omitempty"`
	ElementValue []ElementValue `json:"elementValue,omitempty"`
	Parameter    *Parameter     `json:"parameter,omitempty"`
}

// ElementValue is one entry of the F-D0047 style value container.
type ElementValue struct {
	Value    FlexString `json:"value"`
	Measures string     `json:"measures,omitempty"`
}

// Parameter is the F-C0032-001 style value container.
type Parameter struct {
	ParameterName  FlexString `json:"parameterName"`
	ParameterValue FlexString `json:"parameterValue,omitempty"`
	ParameterUnit  string     `json:"parameterUnit,omitempty"`
}

// FlexString decodes from a JSON string, number, or null. Numbers keep their
// literal text so "20" and 20 compare the same.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Booleans and objects carry no usable value.
		*f = ""
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// value returns the first usable value of the entry, preferring elementValue
// over parameter. ok is false when the container is empty or blank.
func (e TimeEntry) value() (string, bool) {
	if len(e.ElementValue) > 0 {
		if v := strings.TrimSpace(string(e.ElementValue[0].Value)); v != "" {
			return v, true
		}
		return "", false
	}
	if e.Parameter != nil {
		if v := strings.TrimSpace(string(e.Parameter.ParameterName)); v != "" {
			return v, true
		}
	}
	return "", false
}

// AttributeIndex maps element name to its time entries for one location.
type AttributeIndex map[string][]TimeEntry

// ForecastPeriod is the flat, immutable record produced per (location, period).
type ForecastPeriod struct {
	Location                 string `json:"location"`
	StartTime                string `json:"start_time"`
	EndTime                  string `json:"end_time"`
	WeatherDescription       string `json:"weather_description"`
	PrecipitationProbability string `json:"precipitation_probability"`
	MinTemperature           string `json:"min_temperature"`
	MaxTemperature           string `json:"max_temperature"`
}

// Key returns the natural key used for storage and message keys.
func (p ForecastPeriod) Key() string {
	return p.Location + "|" + p.StartTime
}

// StoredObservation is a persisted forecast period.
type StoredObservation struct {
	ForecastPeriod
	FetchedAt time.Time `json:"fetched_at"`
}

// IngestSummary counts the outcome of one ingestion batch.
type IngestSummary struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
}

// Add accumulates another summary into s.
func (s *IngestSummary) Add(o IngestSummary) {
	s.Accepted += o.Accepted
	s.Skipped += o.Skipped
	s.Rejected += o.Rejected
}

// Complete reports whether the period carries the fields required to key it.
func (p ForecastPeriod) Complete() bool {
	loc := strings.TrimSpace(p.Location)
	start := strings.TrimSpace(p.StartTime)
	return loc != "" && start != "" && start != Unavailable
}
