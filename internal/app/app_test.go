package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/framelens/vigil/internal/app"
	"github.com/framelens/vigil/internal/config"
	"github.com/framelens/vigil/internal/engine"
	"github.com/framelens/vigil/pkg/framesource"
	fsmock "github.com/framelens/vigil/pkg/framesource/mock"
	vmock "github.com/framelens/vigil/pkg/provider/vision/mock"
)

// testConfig returns a config that keeps everything inside the test dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Engine.Pacing = config.Duration(time.Millisecond)
	cfg.Storage.Path = filepath.Join(t.TempDir(), "triggers.json")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append(opts,
		app.WithQuerier(&vmock.Querier{}),
		app.WithPrometheusRegisterer(prometheus.NewRegistry()),
	)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNew_WiresSubsystems(t *testing.T) {
	a := newTestApp(t, testConfig(t), app.WithSource(&fsmock.Source{}))
	defer a.Shutdown(context.Background())

	if a.Engine() == nil {
		t.Fatal("Engine() returned nil")
	}
	if a.Engine().State() != engine.Idle {
		t.Errorf("engine state = %v before Run, want Idle", a.Engine().State())
	}
	if got := a.Triggers().Selected(); got != "smiling" {
		t.Errorf("default selected trigger = %q, want smiling", got)
	}
}

func TestNew_FileSourceMissingDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Kind = config.SourceFile
	cfg.Source.Path = filepath.Join(t.TempDir(), "absent")

	_, err := app.New(context.Background(), cfg,
		app.WithQuerier(&vmock.Querier{}),
		app.WithPrometheusRegisterer(prometheus.NewRegistry()),
	)
	if err == nil {
		t.Fatal("expected error for missing frame directory, got nil")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	results := make(chan engine.Result, 1)
	a := newTestApp(t, testConfig(t),
		app.WithSource(fsmock.Ready(framesource.Frame{Data: []byte{0xff, 0xd8}})),
		app.WithOnResult(func(r engine.Result) {
			select {
			case results <- r:
			default:
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// The mock querier answers "" to everything, so the loop runs without
	// producing results; cancelling must still shut everything down.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
	if a.Engine().State() != engine.Idle {
		t.Errorf("engine state = %v after Run, want Idle", a.Engine().State())
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a := newTestApp(t, testConfig(t), app.WithSource(&fsmock.Source{}))
	a.Shutdown(context.Background())
	a.Shutdown(context.Background())
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.StorageSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "triggers.db")

	a := newTestApp(t, cfg, app.WithSource(&fsmock.Source{}))
	defer a.Shutdown(context.Background())

	if _, err := a.Triggers().CreateCustom("Waving", "is anyone waving? yes or no", "yes", "👋 Wave Detected!"); err != nil {
		t.Fatalf("CreateCustom() error = %v", err)
	}
}
