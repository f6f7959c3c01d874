package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/ratelimit"
	"github.com/timmy/imgprompt/internal/service"
)

const testMaxBytes = 256 << 10

type stubDescriber struct {
	response     string
	unconfigured bool
	calls        int
}

func (s *stubDescriber) Describe(ctx context.Context, img *domain.NormalizedImage, instructions string) (string, error) {
	s.calls++
	return s.response, nil
}

func (s *stubDescriber) Configured() bool { return !s.unconfigured }

func (s *stubDescriber) Model() string { return "stub" }

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, x%30, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestRouter(t *testing.T, describer service.Describer) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Mode: "test",
			Name: "Image Prompt Extractor",
			CORS: config.CORSConfig{AllowAllOrigins: true},
		},
	}
	limiter, err := ratelimit.NewFixedWindow(ratelimit.DefaultRule, nil)
	if err != nil {
		t.Fatal(err)
	}
	analyze := service.NewAnalyzeService(
		service.NewImageAcquirer(service.AcquirerConfig{MaxBytes: testMaxBytes, Timeout: 5 * time.Second}),
		service.NewImageNormalizer(service.NormalizerConfig{MaxDimension: 2048, JPEGQuality: 85}),
		service.NewPromptGenerator(limiter, describer),
		nil,
		10*time.Second,
	)
	return SetupRouter(cfg, Dependencies{
		Analyze:  analyze,
		RateRule: ratelimit.DefaultRule,
		Version:  "test",
	})
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image_file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAnalyze_URLEndToEnd(t *testing.T) {
	jpg := sampleJPEG(t)
	imageHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg)
	}))
	defer imageHost.Close()

	describer := &stubDescriber{response: "Here's a detailed description of the image: A red bicycle leaning against a brick wall."}
	router := newTestRouter(t, describer)

	body := `{"image_url":"` + imageHost.URL + `/bike.jpg"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["success"] != true || got["prompt"] != "A red bicycle leaning against a brick wall" {
		t.Errorf("body = %v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAnalyze_Upload(t *testing.T) {
	describer := &stubDescriber{response: "**Sunset** over   calm water."}
	router := newTestRouter(t, describer)

	body, contentType := multipartBody(t, nil, "sunset.jpg", sampleJPEG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["prompt"]; got != "Sunset over calm water" {
		t.Errorf("prompt = %v", got)
	}
}

func TestAnalyze_Failures(t *testing.T) {
	jpg := sampleJPEG(t)
	both, bothType := multipartBody(t, map[string]string{"image_url": "http://example.com/a.jpg"}, "a.jpg", jpg)
	bothOversize, bothOversizeType := multipartBody(t, map[string]string{"image_url": "http://example.com/a.jpg"}, "big.jpg", make([]byte, testMaxBytes+10))
	text, textType := multipartBody(t, nil, "notes.txt", []byte("just some text"))
	oversizeFile, oversizeType := multipartBody(t, nil, "big.jpg", make([]byte, testMaxBytes+10))
	tooLong, tooLongType := multipartBody(t, nil, "huge.jpg", make([]byte, testMaxBytes+multipartOverhead+10))

	tests := []struct {
		name        string
		body        *bytes.Buffer
		contentType string
		wantStatus  int
	}{
		{"neither source", bytes.NewBufferString(`{}`), "application/json", http.StatusBadRequest},
		{"empty body", &bytes.Buffer{}, "application/json", http.StatusBadRequest},
		{"malformed json", bytes.NewBufferString(`{"image_url":`), "application/json", http.StatusBadRequest},
		{"both sources", both, bothType, http.StatusBadRequest},
		{"both sources, oversize file", bothOversize, bothOversizeType, http.StatusBadRequest},
		{"unsupported type", text, textType, http.StatusBadRequest},
		{"non-http url", bytes.NewBufferString(`{"image_url":"file:///etc/passwd"}`), "application/json", http.StatusBadRequest},
		{"file over ceiling", oversizeFile, oversizeType, http.StatusRequestEntityTooLarge},
		{"body over limit", tooLong, tooLongType, http.StatusRequestEntityTooLarge},
		{"unreachable url", bytes.NewBufferString(`{"image_url":"http://127.0.0.1:1/a.jpg"}`), "application/json", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			describer := &stubDescriber{response: "unused"}
			router := newTestRouter(t, describer)

			req := httptest.NewRequest(http.MethodPost, "/api/analyze", tt.body)
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decodeBody(t, rec)
			if got["success"] != false {
				t.Errorf("success = %v", got["success"])
			}
			if msg, _ := got["error"].(string); msg == "" {
				t.Error("missing error message")
			}
			if describer.calls != 0 {
				t.Errorf("describer called %d times", describer.calls)
			}
		})
	}
}

func TestAnalyze_MissingAPIKey(t *testing.T) {
	router := newTestRouter(t, &stubDescriber{unconfigured: true})

	body, contentType := multipartBody(t, nil, "a.jpg", sampleJPEG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyze_ProviderUnreachableHidesKey(t *testing.T) {
	const apiKey = "SUPERSECRETKEY123"
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := provider.URL
	provider.Close()

	describer := service.NewGeminiDescriber(config.VLMConfig{APIKey: apiKey, BaseURL: baseURL, Timeout: 2 * time.Second})
	router := newTestRouter(t, describer)

	body, contentType := multipartBody(t, nil, "a.jpg", sampleJPEG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), apiKey) {
		t.Errorf("response leaks API key: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), baseURL) {
		t.Errorf("response leaks provider URL: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		describer  *stubDescriber
		configured bool
	}{
		{"configured", &stubDescriber{}, true},
		{"missing key", &stubDescriber{unconfigured: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, tt.describer)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			got := decodeBody(t, rec)
			if got["status"] != "healthy" || got["service"] != "Image Prompt Extractor" {
				t.Errorf("body = %v", got)
			}
			if got["gemini_configured"] != tt.configured {
				t.Errorf("gemini_configured = %v, want %v", got["gemini_configured"], tt.configured)
			}
			rl, _ := got["rate_limit"].(map[string]interface{})
			if rl["limit"] != float64(15) || rl["window_seconds"] != float64(60) {
				t.Errorf("rate_limit = %v", rl)
			}
		})
	}
}

func TestArchiveRoutesDisabled(t *testing.T) {
	router := newTestRouter(t, &stubDescriber{})

	for _, path := range []string{"/api/analyses", "/api/analyses/abc"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestNoRoute(t *testing.T) {
	router := newTestRouter(t, &stubDescriber{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound || decodeBody(t, rec)["success"] != false {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
