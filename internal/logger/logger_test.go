package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "imgprompt-test"})

	log.WithField("foo", "bar").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message 'hello', got %v", entry["message"])
	}
	if entry["service"] != "imgprompt-test" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if entry["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", entry["foo"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "warn", Format: "text", Output: &buf, ServiceName: "svc"})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn message in output: %q", out)
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "svc"})

	ctx := base.WithContext(context.Background())
	ctx = SetRequestID(ctx, "req-1")
	ctx = SetStage(ctx, "generating")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("expected request id req-1, got %q", got)
	}
	if got := GetStage(ctx); got != "generating" {
		t.Errorf("expected stage generating, got %q", got)
	}

	With(Fields{FieldDurationMs: int64(12)}).Info(ctx, "done %d", 1)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry[FieldRequestID] != "req-1" {
		t.Errorf("expected request_id in entry, got %v", entry[FieldRequestID])
	}
	if entry[FieldDurationMs] != float64(12) {
		t.Errorf("expected duration_ms 12, got %v", entry[FieldDurationMs])
	}
	if entry["message"] != "done 1" {
		t.Errorf("unexpected message %v", entry["message"])
	}
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != GetDefault() {
		t.Error("expected default logger for bare context")
	}
}

func TestServiceSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Image Prompt Extractor", "image-prompt-extractor"},
		{"  API v2 / Prompts!  ", "api-v2-prompts"},
		{"", "imgprompt"},
		{"***", "imgprompt"},
	}
	for _, tt := range tests {
		if got := ServiceSlug(tt.in); got != tt.want {
			t.Errorf("ServiceSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"SERVICE_NAME", "LOG_FILE", "LOG_LEVEL", "APP_ENV", "LOG_MAX_SIZE"} {
		t.Setenv(key, "")
	}
	t.Setenv("SERVER_NAME", "Image Prompt Extractor")
	t.Setenv("GIN_MODE", "release")

	cfg := LoadFromEnv()
	if cfg.ServiceName != "image-prompt-extractor" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.Environment != "prod" || cfg.Level != "info" {
		t.Errorf("Environment/Level = %q/%q, want prod/info", cfg.Environment, cfg.Level)
	}
	if cfg.LogFile != filepath.Join("logs", "image-prompt-extractor.log") {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
	if cfg.MaxSize != 50 {
		t.Errorf("MaxSize = %d", cfg.MaxSize)
	}
}

func TestEnvConfig_ForService(t *testing.T) {
	t.Setenv("SERVICE_NAME", "")
	t.Setenv("LOG_FILE", "")
	t.Setenv("SERVER_NAME", "")

	base := LoadFromEnv()
	cfg := base.ForService("Prompt Lab")
	if cfg.ServiceName != "prompt-lab" || cfg.LogFile != filepath.Join("logs", "prompt-lab.log") {
		t.Errorf("ForService = %q %q", cfg.ServiceName, cfg.LogFile)
	}
	if base.ServiceName != "imgprompt" {
		t.Errorf("base config modified: %q", base.ServiceName)
	}

	t.Setenv("SERVICE_NAME", "pinned")
	t.Setenv("LOG_FILE", "/tmp/pinned.log")
	cfg = LoadFromEnv().ForService("Prompt Lab")
	if cfg.ServiceName != "pinned" || cfg.LogFile != "/tmp/pinned.log" {
		t.Errorf("explicit settings overridden: %q %q", cfg.ServiceName, cfg.LogFile)
	}
}
