package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the vision providers shipped with vigil.
// Used by [Validate] to warn about unrecognised provider names, which may be
// typos or providers registered by embedding applications.
var ValidProviderNames = []string{"moondream", "openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Inference
	if cfg.Inference.Provider == "" {
		errs = append(errs, errors.New("inference.provider is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Inference.Provider) {
		slog.Warn("unknown inference provider — may be a typo or an externally registered provider",
			"provider", cfg.Inference.Provider,
			"known", ValidProviderNames,
		)
	}
	if cfg.Inference.Provider == "moondream" && cfg.Inference.APIKey == "" && cfg.Inference.Endpoint == "" {
		slog.Warn("inference.api_key is empty; the hosted moondream endpoint will reject unauthenticated requests")
	}
	if cfg.Inference.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("inference.max_retries %d is negative", cfg.Inference.MaxRetries))
	}
	if fb := cfg.Inference.Fallback; fb != nil && fb.Provider == "" {
		errs = append(errs, errors.New("inference.fallback.provider is required when a fallback is configured"))
	}

	// Source
	if cfg.Source.Kind != "" && !cfg.Source.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("source.kind %q is invalid; valid values: file, websocket", cfg.Source.Kind))
	}
	if cfg.Source.Kind == SourceFile && cfg.Source.Path == "" {
		errs = append(errs, errors.New("source.path is required when source.kind is file"))
	}
	if cfg.Source.Kind == SourceWebsocket {
		if cfg.Source.IngestPath == "" {
			errs = append(errs, errors.New("source.ingest_path is required when source.kind is websocket"))
		} else if !strings.HasPrefix(cfg.Source.IngestPath, "/") {
			errs = append(errs, fmt.Errorf("source.ingest_path %q must start with /", cfg.Source.IngestPath))
		}
	}
	if cfg.Source.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("source.frame_interval %s is negative", cfg.Source.FrameInterval))
	}

	// Engine
	if cfg.Engine.Pacing < 0 {
		errs = append(errs, fmt.Errorf("engine.pacing %s is negative", cfg.Engine.Pacing))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, sqlite", cfg.Storage.Backend))
	}

	return errors.Join(errs...)
}
