package moondream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/framelens/vigil/pkg/provider/vision"
)

// newTestClient builds a Client against srv with backoff sleeps recorded
// instead of slept.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := New(srv.URL, "test-key", opts...)
	if err != nil {
		t.Fatal(err)
	}
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestQuerySendsBodyAndAuth(t *testing.T) {
	var gotAuth, gotCT string
	var gotBody queryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"answer": "a cat on a desk"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	answer, err := c.Query(context.Background(), "data:image/jpeg;base64,AAAA", "what do you see?")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "a cat on a desk" {
		t.Errorf("answer = %q", answer)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want Bearer test-key", gotAuth)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotBody.ImageURL != "data:image/jpeg;base64,AAAA" || gotBody.Question != "what do you see?" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestQueryMissingAnswerFieldIsEmptyString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"request_id":"abc123"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	answer, err := c.Query(context.Background(), "img", "q")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty string", answer)
	}
}

func TestQueryRetriesRateLimitWithBackoff(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"answer": "finally"})
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv)
	answer, err := c.Query(context.Background(), "img", "q")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "finally" {
		t.Errorf("answer = %q", answer)
	}
	if calls != 3 {
		t.Errorf("endpoint called %d times, want 3", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestQueryRateLimitExhaustion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv)
	_, err := c.Query(context.Background(), "img", "q")
	if !errors.Is(err, vision.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	// Original attempt plus 3 retries.
	if calls != 4 {
		t.Errorf("endpoint called %d times, want 4", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*delays) != 3 {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// A larger retry budget pushes the exponential past the 8s cap.
	c, delays := newTestClient(t, srv, WithMaxRetries(5))
	_, err := c.Query(context.Background(), "img", "q")
	if !errors.Is(err, vision.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second,
	}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], d)
		}
	}
}

func TestQueryHardStatusFailsImmediately(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, delays := newTestClient(t, srv)
	_, err := c.Query(context.Background(), "img", "q")

	var reqErr *vision.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *vision.RequestError", err)
	}
	if reqErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", reqErr.Status)
	}
	if calls != 1 {
		t.Errorf("endpoint called %d times, want 1 (no retry)", calls)
	}
	if len(*delays) != 0 {
		t.Errorf("unexpected backoff delays %v", *delays)
	}
}

func TestQueryNetworkErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	c, err := New(srv.URL, "test-key")
	if err != nil {
		t.Fatal(err)
	}
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err = c.Query(context.Background(), "img", "q")
	var netErr *vision.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *vision.NetworkError", err)
	}
	if len(delays) != 0 {
		t.Errorf("network errors must not back off, got %v", delays)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "key"); err == nil {
		t.Error("empty endpoint should be rejected")
	}
	if _, err := New("http://example.test", ""); err == nil {
		t.Error("empty apiKey should be rejected")
	}
}

func TestQueryCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "test-key")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if _, err := c.Query(ctx, "img", "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
