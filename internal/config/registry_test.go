package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/framelens/vigil/internal/config"
	"github.com/framelens/vigil/pkg/provider/vision"
)

type staticQuerier struct{ answer string }

func (q staticQuerier) Query(context.Context, string, string) (string, error) {
	return q.answer, nil
}

func TestRegistry_CreateUnregistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	_, err := r.CreateQuerier(config.InferenceConfig{Provider: "crystal-ball"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	r.RegisterQuerier("static", func(config.InferenceConfig) (vision.Querier, error) {
		return staticQuerier{answer: "a test scene"}, nil
	})

	q, err := r.CreateQuerier(config.InferenceConfig{Provider: "static"})
	if err != nil {
		t.Fatalf("CreateQuerier() error = %v", err)
	}
	got, err := q.Query(context.Background(), "img", "question")
	if err != nil || got != "a test scene" {
		t.Errorf("Query() = (%q, %v)", got, err)
	}
}

func TestDefaultRegistry_BuiltinProviders(t *testing.T) {
	t.Parallel()
	r := config.DefaultRegistry()

	if _, err := r.CreateQuerier(config.InferenceConfig{Provider: "moondream", APIKey: "md-key"}); err != nil {
		t.Errorf("moondream: %v", err)
	}
	if _, err := r.CreateQuerier(config.InferenceConfig{Provider: "openai", APIKey: "sk-test"}); err != nil {
		t.Errorf("openai: %v", err)
	}
}
