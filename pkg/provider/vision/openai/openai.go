// Package openai provides a vision.Querier backed by the OpenAI chat
// completions API, sending the frame as an image_url content part alongside
// the question. Useful when the embedding application already has OpenAI
// credentials and no dedicated vision endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/framelens/vigil/pkg/provider/vision"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Compile-time interface check.
var _ vision.Querier = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Provider implements vision.Querier using the OpenAI API. The SDK owns the
// transport-level retry policy; this provider only maps the final outcome
// into the vision error taxonomy.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs an OpenAI-backed vision Provider. If model is empty,
// [DefaultModel] is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai vision: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Query implements vision.Querier.
func (p *Provider) Query(ctx context.Context, image, question string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(question),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: image,
				}),
			}),
		},
	})
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		// Treat an empty choice list like a missing answer field.
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// mapError converts an SDK error into the vision taxonomy.
func mapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return vision.ErrRateLimited
		}
		return &vision.RequestError{Status: apiErr.StatusCode}
	}
	return &vision.NetworkError{Err: err}
}
