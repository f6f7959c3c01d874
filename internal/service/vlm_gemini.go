package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/domain"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiDescriber calls the Gemini generateContent REST endpoint with the
// image attached as inline data.
type GeminiDescriber struct {
	client     *resty.Client
	model      string
	apiKey     string
	baseURL    string
	generation geminiGenerationConfig
}

func NewGeminiDescriber(cfg config.VLMConfig) *GeminiDescriber {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	return &GeminiDescriber{
		client:  newProviderClient(cfg.Timeout),
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		generation: geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			TopK:            cfg.TopK,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}
}

func (d *GeminiDescriber) Model() string {
	return d.model
}

func (d *GeminiDescriber) Configured() bool {
	return strings.TrimSpace(d.apiKey) != ""
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Describe sends instructions followed by the image and joins the text parts
// of the first candidate.
func (d *GeminiDescriber) Describe(ctx context.Context, img *domain.NormalizedImage, instructions string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{Text: instructions},
					{InlineData: &geminiInlineData{
						MIMEType: img.MIMEType,
						Data:     base64.StdEncoding.EncodeToString(img.Data),
					}},
				},
			},
		},
		GenerationConfig: d.generation,
	}

	var resp geminiResponse
	var apiErr geminiErrorResponse
	httpResp, err := d.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", d.apiKey).
		SetBody(req).
		SetResult(&resp).
		SetError(&apiErr).
		Post(fmt.Sprintf("%s/models/%s:generateContent", d.baseURL, d.model))
	if err != nil {
		return "", transportError("Gemini API", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("Gemini API returned HTTP %d (%s): %s", httpResp.StatusCode(), apiErr.Error.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("Gemini API returned HTTP %d: %s", httpResp.StatusCode(), truncate(string(httpResp.Body()), 512))
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("Gemini blocked the request: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in Gemini response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("Gemini returned no text (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}
