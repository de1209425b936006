package domain

import (
	"iter"
	"strings"
)

// Diagnostic reports a recoverable problem found while normalizing a payload.
// Location is empty for payload-level problems.
type Diagnostic struct {
	Location string `json:"location,omitempty"`
	Index    int    `json:"index"`
	Reason   Reason `json:"reason"`
}

// NormalizeResult holds the flat periods and any diagnostics of one parse pass.
// Reason is set only when the whole payload failed validation.
type NormalizeResult struct {
	Periods     []ForecastPeriod `json:"periods"`
	Reason      Reason           `json:"reason,omitempty"`
	Diagnostics []Diagnostic     `json:"diagnostics"`
}

// Valid reports whether the payload passed top-level validation.
func (r NormalizeResult) Valid() bool { return r.Reason == ReasonNone }

// Normalizer turns a raw payload into forecast periods. The zero value uses
// the weather description series ("Wx") as the reference timeline.
type Normalizer struct {
	Reference string
}

// NewNormalizer returns a Normalizer keyed on the given reference element.
func NewNormalizer(reference string) Normalizer {
	return Normalizer{Reference: strings.TrimSpace(reference)}
}

func (n Normalizer) reference() string {
	if n.Reference == "" {
		return ElementWeather
	}
	return n.Reference
}

// Normalize validates, indexes and joins every location of resp, preserving
// location-then-period order. An invalid payload yields no periods and a single
// diagnostic with Index -1.
func (n Normalizer) Normalize(resp RawForecastResponse) NormalizeResult {
	v := Validate(resp)
	if !v.Valid() {
		return NormalizeResult{
			Periods:     []ForecastPeriod{},
			Reason:      v.Reason,
			Diagnostics: invalidDiagnostics(v),
		}
	}

	res := NormalizeResult{Periods: []ForecastPeriod{}, Diagnostics: issueDiagnostics(v)}

	ref := n.reference()
	for _, loc := range v.Locations {
		idx := BuildIndex(loc.Elements)
		if _, ok := idx[ref]; !ok {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Location: loc.Name,
				Index:    loc.Index,
				Reason:   ReasonMissingReference,
			})
			continue
		}
		res.Periods = append(res.Periods, JoinPeriods(loc.Name, idx, ref)...)
	}
	return res
}

// All returns the periods of resp as a sequence. Each iteration re-runs the
// normalization, so the sequence can be ranged over any number of times.
func (n Normalizer) All(resp RawForecastResponse) iter.Seq[ForecastPeriod] {
	return func(yield func(ForecastPeriod) bool) {
		for _, p := range n.Normalize(resp).Periods {
			if !yield(p) {
				return
			}
		}
	}
}

// invalidDiagnostics reports a payload-level failure as a single diagnostic.
func invalidDiagnostics(v Validation) []Diagnostic {
	return []Diagnostic{{Index: -1, Reason: v.Reason}}
}

// issueDiagnostics converts per-location validation issues.
func issueDiagnostics(v Validation) []Diagnostic {
	var out []Diagnostic
	for _, issue := range v.Issues {
		out = append(out, Diagnostic{
			Location: issue.Name,
			Index:    issue.Index,
			Reason:   issue.Reason,
		})
	}
	return out
}
