// Package moondream provides a vision.Querier backed by a Moondream-style
// HTTP inference endpoint: POST a JSON body of {image_url, question} with a
// bearer token and read the answer field of the JSON response.
package moondream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/framelens/vigil/pkg/provider/vision"
)

// DefaultEndpoint is the hosted Moondream query API.
const DefaultEndpoint = "https://api.moondream.ai/v1/query"

const (
	// defaultMaxRetries is the number of additional attempts after a
	// rate-limited response.
	defaultMaxRetries = 3

	// backoffBase is the delay before the first retry; it doubles per attempt.
	backoffBase = time.Second

	// defaultBackoffCap bounds any single backoff delay.
	defaultBackoffCap = 8 * time.Second
)

// Compile-time interface check.
var _ vision.Querier = (*Client)(nil)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to set a
// transport-level timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxRetries overrides the number of retries after a rate-limited
// response. Negative values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// WithBackoffCap overrides the upper bound on a single backoff delay.
func WithBackoffCap(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffCap = d
		}
	}
}

// Client implements vision.Querier against a Moondream-style endpoint.
// Safe for concurrent use: independent calls share nothing but the HTTP
// client, and each carries its own retry sequence.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoffCap time.Duration

	// sleep is stubbed in tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client for the given endpoint URL and API key. Both must be
// non-empty.
func New(endpoint, apiKey string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("moondream: endpoint must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("moondream: apiKey must not be empty")
	}
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		maxRetries: defaultMaxRetries,
		backoffCap: defaultBackoffCap,
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// queryRequest is the JSON body sent to the endpoint.
type queryRequest struct {
	ImageURL string `json:"image_url"`
	Question string `json:"question"`
}

// queryResponse is the JSON body of a successful response. A missing answer
// field decodes to the empty string.
type queryResponse struct {
	Answer string `json:"answer"`
}

// Query implements vision.Querier. Rate-limited responses (429) are retried
// up to the retry budget with exponential backoff; the delay before retry n
// (counted from 0) is min(1s << n, cap). Exhausting the budget yields
// [vision.ErrRateLimited]. Any other non-2xx status fails immediately with a
// [*vision.RequestError], and transport failures with a [*vision.NetworkError].
func (c *Client) Query(ctx context.Context, image, question string) (string, error) {
	body, err := json.Marshal(queryRequest{ImageURL: image, Question: question})
	if err != nil {
		return "", fmt.Errorf("moondream: marshal request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		answer, retryable, err := c.doOnce(ctx, body)
		if err == nil {
			return answer, nil
		}
		if !retryable {
			return "", err
		}
		if attempt >= c.maxRetries {
			return "", vision.ErrRateLimited
		}

		delay := min(backoffBase<<attempt, c.backoffCap)
		if err := c.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("moondream: backoff interrupted: %w", err)
		}
	}
}

// doOnce performs a single request. retryable is true only for a 429 response.
func (c *Client) doOnce(ctx context.Context, body []byte) (answer string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("moondream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, &vision.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", true, vision.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", false, &vision.RequestError{Status: resp.StatusCode}
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return "", false, fmt.Errorf("moondream: decode response: %w", err)
	}
	return qr.Answer, false, nil
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
