package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze fetch timestamps via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used to stamp observations. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time of the package clock in UTC, at the precision stored for fetch times.
func Now() time.Time {
	return clock.Now().UTC().Truncate(time.Microsecond)
}

// NewObservations stamps a batch of periods with a single fetch time.
func NewObservations(periods []ForecastPeriod) []StoredObservation {
	fetchedAt := Now()
	out := make([]StoredObservation, len(periods))
	for i, p := range periods {
		out[i] = StoredObservation{ForecastPeriod: p, FetchedAt: fetchedAt}
	}
	return out
}

// NewStoredReadings stamps a batch of readings with a single fetch time.
func NewStoredReadings(readings []Reading) []StoredReading {
	fetchedAt := Now()
	out := make([]StoredReading, len(readings))
	for i, r := range readings {
		out[i] = StoredReading{Reading: r, FetchedAt: fetchedAt}
	}
	return out
}
