// Package domain models Central Weather Administration (CWA) forecast data.
//
// # Data Source
//
// Forecasts come from the CWA open data datastore, e.g. the 36-hour township
// forecast F-C0032-001 at https://opendata.cwa.gov.tw/api/v1/rest/datastore/.
// A response nests element-keyed time series per location:
//
//	records.location[]                  one entry per county or township
//	  locationName                      e.g. "臺北市"
//	  weatherElement[]                  one series per attribute
//	    elementName                     "Wx", "PoP", "MinT", "MaxT", "CI"
//	    time[]
//	      startTime, endTime            "2024-04-26 18:00:00"
//	      elementValue[0].value         F-D0047 style value
//	      parameter.parameterName       F-C0032 style value
//
// Each element carries its own timeline. Nothing guarantees that the series
// line up, that every element is present, or that a value container is
// non-empty.
//
// # Normalization
//
// The weather description series (Wx) is the reference timeline: every Wx
// entry becomes one [ForecastPeriod]. The other tracked elements are joined by
// exact startTime string equality, taking the first matching entry. Timestamps
// are never parsed here. Missing elements, unmatched periods and empty value
// containers all resolve to [Unavailable].
//
// Tie-breaks:
//
//	duplicate elementName in one location   last series wins (BuildIndex)
//	duplicate startTime within one series   first entry wins (JoinPeriods)
//
// # Storage Keys
//
// A period is keyed by (location, startTime). Rolling forecasts are re-fetched
// many times and mostly re-observe stored periods, so stores insert with
// ON CONFLICT DO NOTHING and the first-seen values are kept.
package domain
