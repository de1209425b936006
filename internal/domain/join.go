package domain

import "strings"

// BuildIndex keys one location's element series by name. A later series with
// the same name replaces an earlier one; unnamed series are not indexed.
func BuildIndex(elements []RawElement) AttributeIndex {
	idx := make(AttributeIndex, len(elements))
	for _, el := range elements {
		name := strings.TrimSpace(el.ElementName)
		if name == "" {
			continue
		}
		entries := el.Time
		if entries == nil {
			entries = []TimeEntry{}
		}
		idx[name] = entries
	}
	return idx
}

// JoinPeriods emits one ForecastPeriod per entry of the reference timeline.
// PoP, MinT and MaxT are matched on exact StartTime equality, first match in
// list order. Returns nil when the reference element is not indexed.
func JoinPeriods(location string, idx AttributeIndex, reference string) []ForecastPeriod {
	ref, ok := idx[reference]
	if !ok {
		return nil
	}

	periods := make([]ForecastPeriod, 0, len(ref))
	for _, entry := range ref {
		periods = append(periods, ForecastPeriod{
			Location:                 location,
			StartTime:                entry.StartTime,
			EndTime:                  entry.EndTime,
			WeatherDescription:       valueOrUnavailable(entry, true),
			PrecipitationProbability: lookup(idx, ElementPrecipitation, entry.StartTime),
			MinTemperature:           lookup(idx, ElementMinTemp, entry.StartTime),
			MaxTemperature:           lookup(idx, ElementMaxTemp, entry.StartTime),
		})
	}
	return periods
}

// lookup finds the first entry of element whose StartTime equals startTime.
func lookup(idx AttributeIndex, element, startTime string) string {
	for _, e := range idx[element] {
		if e.StartTime == startTime {
			return valueOrUnavailable(e, true)
		}
	}
	return valueOrUnavailable(TimeEntry{}, false)
}

// valueOrUnavailable is the single place the Unavailable sentinel is substituted.
func valueOrUnavailable(e TimeEntry, found bool) string {
	if !found {
		return Unavailable
	}
	v, ok := e.value()
	if !ok {
		return Unavailable
	}
	return v
}
