// Command genmock writes a synthetic CWA F-C0032-001 payload for local runs
// and fixtures. Values are drawn from a seeded generator so the same flags
// always produce the same file.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -locations 臺北市,高雄市 \
//	  -periods 3 \
//	  -start "2024-04-26 18:00:00" \
//	  -drop MaxT \
//	  -out internal/pipeline/testdata/generated.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

var weatherPhrases = []struct {
	name  string
	value string
}{
	{"晴天", "1"},
	{"晴時多雲", "2"},
	{"多雲時晴", "3"},
	{"多雲", "4"},
	{"多雲時陰", "5"},
	{"陰短暫雨", "11"},
	{"多雲午後短暫雷陣雨", "22"},
}

var comfortPhrases = []string{"寒冷", "稍有寒意", "舒適", "舒適至悶熱", "悶熱"}

type options struct {
	locations []string
	periods   int
	start     time.Time
	step      time.Duration
	drop      map[string]bool
	seed      uint64
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("genmock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	locations := fs.String("locations", "臺北市,新北市,高雄市", "comma-separated location names")
	periods := fs.Int("periods", 3, "periods per location")
	start := fs.String("start", "2024-04-26 18:00:00", "first period start time")
	step := fs.Duration("step", 12*time.Hour, "period length")
	drop := fs.String("drop", "", "comma-separated element names to omit")
	seed := fs.Uint64("seed", 240426, "random seed")
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	startTime, err := time.Parse(timeLayout, *start)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -start: %v\n", err)
		return 2
	}
	if *periods < 1 || *step <= 0 {
		fmt.Fprintln(stderr, "-periods and -step must be positive")
		return 2
	}

	opts := options{
		locations: config.SplitList(*locations),
		periods:   *periods,
		start:     startTime,
		step:      *step,
		drop:      map[string]bool{},
		seed:      *seed,
	}
	for _, name := range config.SplitList(*drop) {
		opts.drop[name] = true
	}

	data, err := json.MarshalIndent(generate(opts), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "encode payload: %v\n", err)
		return 1
	}
	data = append(data, '\n')

	if *out == "" {
		if _, err := stdout.Write(data); err != nil {
			return 1
		}
		return 0
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(stderr, "write %s: %v\n", *out, err)
		return 1
	}
	fmt.Fprintf(stderr, "wrote %d locations x %d periods to %s\n", len(opts.locations), opts.periods, *out)
	return 0
}

func generate(opts options) domain.RawForecastResponse {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed>>1|1))

	locs := make([]domain.RawLocation, 0, len(opts.locations))
	for _, name := range opts.locations {
		var wx, pop, minT, ci, maxT []domain.TimeEntry
		for i := range opts.periods {
			from := opts.start.Add(time.Duration(i) * opts.step)
			to := from.Add(opts.step)
			span := func(p domain.Parameter) domain.TimeEntry {
				return domain.TimeEntry{
					StartTime: from.Format(timeLayout),
					EndTime:   to.Format(timeLayout),
					Parameter: &p,
				}
			}

			phrase := weatherPhrases[rng.IntN(len(weatherPhrases))]
			low := 15 + rng.IntN(12)
			high := low + 3 + rng.IntN(8)

			wx = append(wx, span(domain.Parameter{
				ParameterName:  domain.FlexString(phrase.name),
				ParameterValue: domain.FlexString(phrase.value),
			}))
			pop = append(pop, span(domain.Parameter{
				ParameterName: domain.FlexString(strconv.Itoa(rng.IntN(11) * 10)),
				ParameterUnit: "百分比",
			}))
			minT = append(minT, span(domain.Parameter{ParameterName: domain.FlexString(strconv.Itoa(low)), ParameterUnit: "C"}))
			ci = append(ci, span(domain.Parameter{ParameterName: domain.FlexString(comfortPhrases[rng.IntN(len(comfortPhrases))])}))
			maxT = append(maxT, span(domain.Parameter{ParameterName: domain.FlexString(strconv.Itoa(high)), ParameterUnit: "C"}))
		}

		elements := make([]domain.RawElement, 0, 5)
		for _, el := range []domain.RawElement{
			{ElementName: domain.ElementWeather, Time: wx},
			{ElementName: domain.ElementPrecipitation, Time: pop},
			{ElementName: domain.ElementMinTemp, Time: minT},
			{ElementName: "CI", Time: ci},
			{ElementName: domain.ElementMaxTemp, Time: maxT},
		} {
			if !opts.drop[strings.TrimSpace(el.ElementName)] {
				elements = append(elements, el)
			}
		}

		n := name
		locs = append(locs, domain.RawLocation{LocationName: &n, WeatherElement: elements})
	}

	return domain.RawForecastResponse{
		Success: "true",
		Records: &domain.RawRecords{
			DatasetDescription: "三十六小時天氣預報",
			Location:           locs,
		},
	}
}
