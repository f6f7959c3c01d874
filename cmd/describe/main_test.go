package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/service"
)

type fakeAnalyzer struct {
	input  service.AnalyzeInput
	prompt string
	err    error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, input service.AnalyzeInput) (*service.AnalyzeResult, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &service.AnalyzeResult{Prompt: f.prompt}, nil
}

// executeCommand runs the command with a fake pipeline and captures stdout.
func executeCommand(fake *fakeAnalyzer, args ...string) (string, error) {
	build := func(ctx context.Context, configPath string) (analyzer, func() error, error) {
		return fake, func() error { return nil }, nil
	}
	cmd := newRootCmd(build)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDescribe_URL(t *testing.T) {
	fake := &fakeAnalyzer{prompt: "A red bicycle leaning against a brick wall"}

	out, err := executeCommand(fake, "--url", "https://img.test/bike.jpg")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if strings.TrimSpace(out) != "A red bicycle leaning against a brick wall" {
		t.Errorf("output = %q", out)
	}
	if fake.input.ImageURL != "https://img.test/bike.jpg" || fake.input.Upload != nil {
		t.Errorf("input = %+v", fake.input)
	}
}

func TestDescribe_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, []byte("png bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	fake := &fakeAnalyzer{prompt: "ok"}

	if _, err := executeCommand(fake, "--file", path); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if fake.input.Upload == nil || fake.input.Upload.Filename != "photo.png" || string(fake.input.Upload.Data) != "png bytes" {
		t.Errorf("upload = %+v", fake.input.Upload)
	}
}

func TestDescribe_FlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"neither", nil},
		{"both", []string{"--url", "https://img.test/a.jpg", "--file", "a.jpg"}},
		{"positional", []string{"https://img.test/a.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeCommand(&fakeAnalyzer{}, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDescribe_ErrorCarriesKind(t *testing.T) {
	fake := &fakeAnalyzer{err: fmt.Errorf("%w: HTTP 404", domain.ErrDownload)}

	_, err := executeCommand(fake, "--url", "https://img.test/missing.jpg")
	if !errors.Is(err, domain.ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "download: ") {
		t.Errorf("error = %q", err.Error())
	}
}
