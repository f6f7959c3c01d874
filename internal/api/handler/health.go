package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgprompt/internal/ratelimit"
)

// HealthHandler reports static service status. It never contacts the provider.
type HealthHandler struct {
	service    string
	version    string
	configured func() bool
	rule       ratelimit.Rule
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - service: human-readable service name.
//   - version: build version string.
//   - configured: reports whether a provider credential is present.
//   - rule: rate window applied to provider calls.
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(service, version string, configured func() bool, rule ratelimit.Rule) *HealthHandler {
	return &HealthHandler{service: service, version: version, configured: configured, rule: rule}
}

type RateLimitInfo struct {
	Limit         int     `json:"limit"`
	WindowSeconds float64 `json:"window_seconds"`
}

type HealthResponse struct {
	Status           string        `json:"status"`
	Service          string        `json:"service"`
	GeminiConfigured bool          `json:"gemini_configured"`
	Version          string        `json:"version"`
	RateLimit        RateLimitInfo `json:"rate_limit"`
}

// Health handles GET /health.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "healthy",
		Service:          h.service,
		GeminiConfigured: h.configured(),
		Version:          h.version,
		RateLimit: RateLimitInfo{
			Limit:         h.rule.Requests,
			WindowSeconds: h.rule.Window.Seconds(),
		},
	})
}
