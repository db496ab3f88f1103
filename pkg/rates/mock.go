package rates

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// baseRates is the reference table the mock derives everything from,
// quoted against USD.
var baseRates = map[string]float64{
	"USD": 1,
	"EUR": 0.92,
	"INR": 82.95,
	"JPY": 149.12,
	"CHF": 0.89,
	"CAD": 1.35,
	"AUD": 1.52,
	"NZD": 1.64,
}

// Mock generates plausible rates without network access: cross-rates from the
// base table with a small jitter for Latest, a bounded random walk for
// TimeSeries. Used when no API key is configured.
type Mock struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock builds a mock source. seed fixes the jitter for tests; pass 0 for a
// time-based seed.
func NewMock(seed int64) *Mock {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mock{rng: rand.New(rand.NewSource(seed))}
}

// Latest returns jittered cross-rates against base.
func (m *Mock) Latest(_ context.Context, base string) (*LatestResponse, error) {
	baseRate, ok := baseRates[base]
	if !ok {
		return nil, fmt.Errorf("unsupported base currency %q", base)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]float64, len(baseRates))
	for code, rate := range baseRates {
		jitter := (m.rng.Float64() - 0.5) * 0.001
		out[code] = round4(rate/baseRate + jitter)
	}

	return &LatestResponse{
		Success: true,
		Base:    base,
		Date:    time.Now().UTC().Format(DateFormat),
		Rates:   out,
	}, nil
}

// TimeSeries walks each requested rate day by day from the table value.
func (m *Mock) TimeSeries(_ context.Context, start, end time.Time, base string, symbols []string) (*TimeSeriesResponse, error) {
	baseRate, ok := baseRates[base]
	if !ok {
		return nil, fmt.Errorf("unsupported base currency %q", base)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", end.Format(DateFormat), start.Format(DateFormat))
	}

	if len(symbols) == 0 {
		for code := range baseRates {
			symbols = append(symbols, code)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	walk := make(map[string]float64, len(symbols))
	for _, code := range symbols {
		rate, ok := baseRates[code]
		if !ok {
			return nil, fmt.Errorf("unsupported currency %q", code)
		}
		walk[code] = rate / baseRate
	}

	series := make(map[string]map[string]float64)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		row := make(map[string]float64, len(symbols))
		for _, code := range symbols {
			walk[code] *= 1 + (m.rng.Float64()-0.5)*0.02
			row[code] = round4(walk[code])
		}
		series[day.Format(DateFormat)] = row
	}

	return &TimeSeriesResponse{
		Success:   true,
		Base:      base,
		StartDate: start.Format(DateFormat),
		EndDate:   end.Format(DateFormat),
		Rates:     series,
	}, nil
}

func round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}

var _ Source = (*Mock)(nil)
