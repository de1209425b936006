// Command validate checks a saved CWA payload offline. It reports the
// validation outcome, every normalization diagnostic, and the joined period
// table (or the reading list for observation datasets), and exits non-zero
// when the payload is invalid.
//
// Usage:
//
//	go run ./cmd/validate -payload testdata/f-c0032-001.json [-reference Wx] [-json]
//	go run ./cmd/validate -payload testdata/f-a0010-001.json -dataset F-A0010-001 [-reference TEMP]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/couchcryptid/forecast-etl/internal/domain"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	payload := fs.String("payload", "", "path to a raw CWA JSON payload")
	dataset := fs.String("dataset", "F-C0032-001", "CWA dataset id the payload came from")
	reference := fs.String("reference", "", "element to read (default Wx for forecasts, TEMP for observations)")
	asJSON := fs.Bool("json", false, "print the full result as JSON instead of a report")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *payload == "" {
		fs.Usage()
		return 2
	}

	data, err := os.ReadFile(*payload)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: read payload: %v\n", err)
		return 1
	}
	resp, err := domain.DecodeResponse(data)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	var (
		result any
		valid  bool
	)
	if domain.FeedFor(*dataset) == domain.FeedReadings {
		res := domain.NewReadingNormalizer(*reference).Normalize(resp)
		if res.Diagnostics == nil {
			res.Diagnostics = []domain.Diagnostic{}
		}
		result, valid = res, res.Valid()
		if !*asJSON {
			reportReadings(stdout, nonEmpty(*reference, domain.ElementTemperature), res)
		}
	} else {
		res := domain.NewNormalizer(*reference).Normalize(resp)
		if res.Diagnostics == nil {
			res.Diagnostics = []domain.Diagnostic{}
		}
		result, valid = res, res.Valid()
		if !*asJSON {
			report(stdout, nonEmpty(*reference, domain.ElementWeather), res)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(stderr, "FATAL: encode result: %v\n", err)
			return 1
		}
	}

	if !valid {
		return 1
	}
	return 0
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func report(w io.Writer, reference string, res domain.NormalizeResult) {
	fmt.Fprintln(w, "=== Forecast Payload Validation ===")
	fmt.Fprintf(w, "Reference element: %s\n", reference)
	if !res.Valid() {
		fmt.Fprintf(w, "Result: \033[31mINVALID\033[0m (%s)\n", res.Reason)
		return
	}
	fmt.Fprintf(w, "Result: \033[32mVALID\033[0m, %d periods, %d diagnostics\n", len(res.Periods), len(res.Diagnostics))
	reportDiagnostics(w, res.Diagnostics)

	if len(res.Periods) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Periods ---")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tSTART\tEND\tWEATHER\tPOP\tMIN\tMAX")
	for _, p := range res.Periods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Location, p.StartTime, p.EndTime,
			p.WeatherDescription, p.PrecipitationProbability, p.MinTemperature, p.MaxTemperature)
	}
	tw.Flush() //nolint:errcheck // best-effort report
}

func reportReadings(w io.Writer, element string, res domain.ReadingResult) {
	fmt.Fprintln(w, "=== Observation Payload Validation ===")
	fmt.Fprintf(w, "Element: %s\n", element)
	if !res.Valid() {
		fmt.Fprintf(w, "Result: \033[31mINVALID\033[0m (%s)\n", res.Reason)
		return
	}
	fmt.Fprintf(w, "Result: \033[32mVALID\033[0m, %d readings, %d diagnostics\n", len(res.Readings), len(res.Diagnostics))
	reportDiagnostics(w, res.Diagnostics)

	if len(res.Readings) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Readings ---")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tOBSERVED\tVALUE")
	for _, r := range res.Readings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Location, r.ObservationTime, r.Value)
	}
	tw.Flush() //nolint:errcheck // best-effort report
}

func reportDiagnostics(w io.Writer, diags []domain.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Diagnostics ---")
	for i, d := range diags {
		name := d.Location
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Fprintf(w, "  [%d] location %d (%s): %s\n", i+1, d.Index, name, d.Reason)
	}
}
