package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/logger"
)

// Describer is a vision model that turns an image into free text.
type Describer interface {
	// Describe sends img with instructions and returns the raw model text.
	Describe(ctx context.Context, img *domain.NormalizedImage, instructions string) (string, error)
	// Configured reports whether a provider credential is present.
	Configured() bool
	// Model returns the model identifier used for requests.
	Model() string
}

// NewDescriber builds the provider selected by cfg.Provider.
// Parameters:
//   - cfg: vision model configuration.
// Returns:
//   - Describer: provider client.
//   - error: non-nil for an unknown provider.
func NewDescriber(cfg config.VLMConfig) (Describer, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiDescriber(cfg), nil
	case "openai":
		return NewOpenAIDescriber(cfg), nil
	default:
		return nil, fmt.Errorf("unknown vlm provider %q", cfg.Provider)
	}
}

func newProviderClient(timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetLogger(logger.GetDefault())
	client.SetHeader("Content-Type", "application/json")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)
	return client
}

// transportError reports a failed provider call without the request URL,
// which may carry credentials.
func transportError(provider string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("failed to call %s: %s error: %w", provider, urlErr.Op, urlErr.Err)
	}
	return fmt.Errorf("failed to call %s: %w", provider, err)
}

// OpenAIDescriber talks to any OpenAI-compatible chat completions endpoint.
type OpenAIDescriber struct {
	client    *resty.Client
	model     string
	apiKey    string
	endpoint  string
	maxTokens int
}

func NewOpenAIDescriber(cfg config.VLMConfig) *OpenAIDescriber {
	client := newProviderClient(cfg.Timeout)
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	// the shared default names a Gemini model
	if model == "" || strings.HasPrefix(model, "gemini") {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &OpenAIDescriber{
		client:    client,
		model:     model,
		apiKey:    cfg.APIKey,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

func (d *OpenAIDescriber) Model() string {
	return d.model
}

func (d *OpenAIDescriber) Configured() bool {
	return strings.TrimSpace(d.apiKey) != ""
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Describe sends the image as a base64 data URL next to the instructions.
func (d *OpenAIDescriber) Describe(ctx context.Context, img *domain.NormalizedImage, instructions string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data))

	req := openAIRequest{
		Model: d.model,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []interface{}{
					openAITextContent{Type: "text", Text: instructions},
					openAIImageContent{
						Type:     "image_url",
						ImageURL: openAIImageURL{URL: dataURL, Detail: "auto"},
					},
				},
			},
		},
		MaxTokens: d.maxTokens,
	}

	var resp openAIResponse
	var apiErr openAIErrorResponse
	httpResp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&apiErr).
		Post(d.endpoint)
	if err != nil {
		return "", transportError("VLM API", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("VLM API returned HTTP %d: %s", httpResp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("VLM API returned HTTP %d: %s", httpResp.StatusCode(), truncate(string(httpResp.Body()), 512))
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in VLM response: %s", truncate(string(httpResp.Body()), 512))
	}

	return resp.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
