// Package rates provides foreign-exchange reference rates. The settlement
// core never depends on it; orders settle at their caller-supplied limit
// price. Rates exist for the dashboard surface only.
package rates

import (
	"context"
	"time"
)

// DateFormat is the wire format for rate dates.
const DateFormat = "2006-01-02"

// LatestResponse holds spot rates for one base currency.
type LatestResponse struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
}

// TimeSeriesResponse holds daily rates over a date range.
type TimeSeriesResponse struct {
	Success   bool                          `json:"success"`
	Base      string                        `json:"base"`
	StartDate string                        `json:"start_date"`
	EndDate   string                        `json:"end_date"`
	Rates     map[string]map[string]float64 `json:"rates"`
}

// Source supplies reference rates.
type Source interface {
	Latest(ctx context.Context, base string) (*LatestResponse, error)
	TimeSeries(ctx context.Context, start, end time.Time, base string, symbols []string) (*TimeSeriesResponse, error)
}
