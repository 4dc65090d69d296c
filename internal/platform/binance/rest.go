package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// RESTClient queries the spot market data REST API.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewRESTClient creates a REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com".
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// Ticker24h returns the rolling 24h ticker for one symbol.
func (c *RESTClient) Ticker24h(ctx context.Context, symbol string) (domain.Observation, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	body, err := c.doGet(ctx, "/api/v3/ticker/24hr?"+params.Encode())
	if err != nil {
		return domain.Observation{}, fmt.Errorf("binance/rest: ticker %s: %w", symbol, err)
	}

	var t RESTTicker
	if err := json.Unmarshal(body, &t); err != nil {
		return domain.Observation{}, fmt.Errorf("binance/rest: decode ticker %s: %w", symbol, domain.ErrMalformedMessage)
	}
	if t.Symbol == "" {
		t.Symbol = symbol
	}
	obs, err := t.ToObservation(c.now())
	if err != nil {
		return domain.Observation{}, fmt.Errorf("binance/rest: %w", err)
	}
	return obs, nil
}

func (c *RESTClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps API error statuses to domain errors. 418 is the
// auto-ban that follows ignored 429s.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
