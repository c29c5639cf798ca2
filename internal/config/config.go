// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the vigil server.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "250ms" or "2s". Bare integers are accepted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String formats d like time.Duration.
func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the vigil server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding slog level. Unrecognised values map to
// Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SourceKind selects where frames come from.
type SourceKind string

const (
	// SourceFile replays still images from a directory.
	SourceFile SourceKind = "file"

	// SourceWebsocket accepts frames pushed by a remote publisher over a
	// websocket endpoint on the vigil server.
	SourceWebsocket SourceKind = "websocket"
)

// IsValid reports whether k is a recognised source kind.
func (k SourceKind) IsValid() bool {
	return k == SourceFile || k == SourceWebsocket
}

// StorageBackend selects how custom triggers are persisted.
type StorageBackend string

const (
	// StorageFile stores the custom trigger set as a JSON document.
	StorageFile StorageBackend = "file"

	// StorageSQLite stores the custom trigger set in a SQLite database.
	StorageSQLite StorageBackend = "sqlite"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	return b == StorageFile || b == StorageSQLite
}

// Config is the root configuration structure for vigil.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Inference InferenceConfig `yaml:"inference"`
	Source    SourceConfig    `yaml:"source"`
	Engine    EngineConfig    `yaml:"engine"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig holds network and logging settings for the vigil server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// The server exposes /metrics, /healthz, /readyz, and — when the source
	// kind is websocket — the frame ingest endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// InferenceConfig selects and configures the vision endpoint that answers
// per-frame questions. The Provider field is used to look up the constructor
// in the [Registry].
type InferenceConfig struct {
	// Provider selects the registered vision provider (e.g., "moondream",
	// "openai").
	Provider string `yaml:"provider"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// Endpoint overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	Endpoint string `yaml:"endpoint"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	// Ignored by providers that serve a single model.
	Model string `yaml:"model"`

	// MaxRetries caps retries after rate-limit responses. Zero means the
	// provider default.
	MaxRetries int `yaml:"max_retries"`

	// Fallback optionally configures a second provider tried when the
	// primary fails or its circuit breaker is open.
	Fallback *FallbackConfig `yaml:"fallback"`
}

// FallbackConfig configures a secondary vision provider.
type FallbackConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// Inference returns the fallback block as a standalone [InferenceConfig] so
// it can be passed to the provider registry.
func (f FallbackConfig) Inference() InferenceConfig {
	return InferenceConfig{
		Provider: f.Provider,
		APIKey:   f.APIKey,
		Endpoint: f.Endpoint,
		Model:    f.Model,
	}
}

// SourceConfig describes where frames come from.
type SourceConfig struct {
	// Kind selects the frame source implementation.
	Kind SourceKind `yaml:"kind"`

	// Path is the image directory replayed when Kind is "file".
	Path string `yaml:"path"`

	// FrameInterval is how long each image is served before the file source
	// advances to the next one. Zero means the source default.
	FrameInterval Duration `yaml:"frame_interval"`

	// IngestPath is the websocket endpoint publishers connect to when Kind
	// is "websocket" (e.g., "/ingest").
	IngestPath string `yaml:"ingest_path"`

	// StaleAfter is how long the websocket source keeps serving the last
	// received frame before reporting not-ready. Zero means the source
	// default; negative disables staleness entirely.
	StaleAfter Duration `yaml:"stale_after"`
}

// EngineConfig tunes the query loop.
type EngineConfig struct {
	// Pacing is the delay between cycles. Zero means the engine default.
	Pacing Duration `yaml:"pacing"`

	// Query is the free-text question asked about every frame. Blank falls
	// back to the engine's built-in summary question.
	Query string `yaml:"query"`
}

// StorageConfig describes where custom triggers are persisted.
type StorageConfig struct {
	// Backend selects the trigger store implementation.
	Backend StorageBackend `yaml:"backend"`

	// Path is the store location. When empty, a per-user default under the
	// XDG data directory is used.
	Path string `yaml:"path"`
}

// Default returns a configuration with every optional field at its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Inference: InferenceConfig{
			Provider: "moondream",
		},
		Source: SourceConfig{
			Kind:       SourceWebsocket,
			IngestPath: "/ingest",
		},
		Storage: StorageConfig{
			Backend: StorageFile,
		},
	}
}

// StorePath returns the configured trigger store location, falling back to a
// per-user path under the XDG data directory.
func (s StorageConfig) StorePath() string {
	if s.Path != "" {
		return s.Path
	}
	switch s.Backend {
	case StorageSQLite:
		return filepath.Join(xdg.DataHome, "vigil", "triggers.db")
	default:
		return filepath.Join(xdg.DataHome, "vigil", "triggers.json")
	}
}
