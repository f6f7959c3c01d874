package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/imgprompt/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		VLM:       config.VLMConfig{Provider: "gemini", Model: "gemini-1.5-flash"},
		RateLimit: config.RateLimitConfig{Requests: 15, Window: time.Minute, Backend: "memory"},
		Image: config.ImageConfig{
			MaxBytes:        32 * config.MiB,
			MaxDimension:    2048,
			JPEGQuality:     85,
			DownloadTimeout: 30 * time.Second,
		},
		Analyze: config.AnalyzeConfig{RequestTimeout: 40 * time.Second},
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         filepath.Join(t.TempDir(), "analyses.db"),
			MaxIdleConns: 1,
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
	}
}

func TestNew_WithoutAPIKey(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Analyze == nil {
		t.Fatal("Analyze service not built")
	}
	if a.Analyze.Configured() {
		t.Error("pipeline without key must report unconfigured")
	}
	if a.Archive != nil {
		t.Error("archive should be disabled by default")
	}
	if a.RateRule.Requests != 15 || a.RateRule.Window != time.Minute {
		t.Errorf("RateRule = %+v", a.RateRule)
	}
}

func TestNew_ArchiveMetadataOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = true

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Archive == nil {
		t.Fatal("archive not built")
	}
	items, total, err := a.Archive.List(context.Background(), 10, 0)
	if err != nil || total != 0 || len(items) != 0 {
		t.Errorf("List() = %v, %d, %v", items, total, err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.VLM.Provider = "nope"

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error")
	}
}
