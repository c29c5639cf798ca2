package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/framelens/vigil/pkg/provider/vision"
)

// chatResponse builds a minimal chat completions payload with one choice.
func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  DefaultModel,
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func TestQueryReturnsFirstChoice(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("two people at a table"))
	}))
	defer srv.Close()

	p, err := New("test-key", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	answer, err := p.Query(context.Background(), "data:image/jpeg;base64,AAAA", "what do you see?")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "two people at a table" {
		t.Errorf("answer = %q", answer)
	}

	// The request must carry both the question text and the image part.
	raw, _ := json.Marshal(gotBody)
	for _, want := range []string{"what do you see?", "data:image/jpeg;base64,AAAA", "image_url"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("request body missing %q: %s", want, raw)
		}
	}
}

func TestQueryEmptyChoicesIsEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "choices": []any{},
		})
	}))
	defer srv.Close()

	p, err := New("test-key", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	answer, err := p.Query(context.Background(), "img", "q")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "" {
		t.Errorf("answer = %q, want empty", answer)
	}
}

func TestQueryMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"nope"}}`))
	}))
	defer srv.Close()

	p, err := New("test-key", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Query(context.Background(), "img", "q")

	var reqErr *vision.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *vision.RequestError", err)
	}
	if reqErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", reqErr.Status)
	}
}

func TestQueryMapsTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	p, err := New("test-key", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Query(context.Background(), "img", "q")

	var netErr *vision.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *vision.NetworkError", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("empty apiKey should be rejected")
	}
}
