package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/logger"
	"github.com/timmy/imgprompt/internal/prompts"
	"github.com/timmy/imgprompt/internal/ratelimit"
)

// PromptGenerator submits a normalized image to the vision provider behind
// the global rate window.
type PromptGenerator struct {
	limiter      ratelimit.Limiter
	describer    Describer
	instructions string
}

func NewPromptGenerator(limiter ratelimit.Limiter, describer Describer) *PromptGenerator {
	return &PromptGenerator{
		limiter:      limiter,
		describer:    describer,
		instructions: prompts.DescribeInstruction,
	}
}

// Configured reports whether the provider has a credential.
func (g *PromptGenerator) Configured() bool {
	return g.describer.Configured()
}

// Model returns the provider model identifier.
func (g *PromptGenerator) Model() string {
	return g.describer.Model()
}

// Generate waits for a slot in the rate window and returns the raw model
// text. Every failure is a generation error; nothing is retried.
func (g *PromptGenerator) Generate(ctx context.Context, img *domain.NormalizedImage) (string, error) {
	if !g.describer.Configured() {
		return "", fmt.Errorf("%w: vision provider API key is not configured", domain.ErrGeneration)
	}

	ctx = logger.SetStage(ctx, string(domain.StageRateLimited))
	waitStart := time.Now()
	if err := g.limiter.Acquire(ctx); err != nil {
		return "", fmt.Errorf("%w: waiting for rate limit: %w", domain.ErrGeneration, err)
	}

	ctx = logger.SetStage(ctx, string(domain.StageGenerating))
	logger.With(logger.Fields{
		"wait_ms": time.Since(waitStart).Milliseconds(),
		"model":   g.describer.Model(),
	}).Info(ctx, "Calling vision provider")

	start := time.Now()
	raw, err := g.describer.Describe(ctx, img, g.instructions)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: provider returned an empty response", domain.ErrGeneration)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldSize:       len(raw),
	}).Info(ctx, "Vision provider responded")

	return raw, nil
}
