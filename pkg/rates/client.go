package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.apilayer.com/exchangerates_data"

// Client fetches rates from the apilayer exchangerates_data API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// NewClient builds an apilayer client. baseURL may be empty to use the
// production endpoint.
func NewClient(baseURL, apiKey string, log *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Latest returns current rates against base.
func (c *Client) Latest(ctx context.Context, base string) (*LatestResponse, error) {
	q := url.Values{}
	q.Set("base", base)

	var out LatestResponse
	if err := c.fetch(ctx, "/latest", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TimeSeries returns daily rates for symbols against base between start and
// end (inclusive).
func (c *Client) TimeSeries(ctx context.Context, start, end time.Time, base string, symbols []string) (*TimeSeriesResponse, error) {
	q := url.Values{}
	q.Set("base", base)
	q.Set("start_date", start.Format(DateFormat))
	q.Set("end_date", end.Format(DateFormat))
	if len(symbols) > 0 {
		q.Set("symbols", strings.Join(symbols, ","))
	}

	var out TimeSeriesResponse
	if err := c.fetch(ctx, "/timeseries", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// fetch performs a GET with bounded retries and exponential backoff.
func (c *Client) fetch(ctx context.Context, path string, q url.Values, out any) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			c.log.Infow("rate_fetch_retry", "path", path, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := c.doFetch(ctx, path, q, out); err != nil {
			lastErr = err
			c.log.Warnw("rate_fetch_failed", "path", path, "attempt", attempt+1, "err", err)
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Client) doFetch(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rate provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode rate response: %w", err)
	}
	return nil
}

var _ Source = (*Client)(nil)
