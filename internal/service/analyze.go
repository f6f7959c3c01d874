package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/logger"
	"github.com/timmy/imgprompt/internal/prompts"
)

const archiveTimeout = 15 * time.Second

// AnalyzeInput carries exactly one image source.
type AnalyzeInput struct {
	ImageURL string
	Upload   *domain.Upload
}

type AnalyzeResult struct {
	Prompt     string
	Model      string
	AnalysisID string
	Duration   time.Duration
}

// AnalyzeService runs one request through acquisition, normalization,
// generation and text cleanup. Errors keep their kind and are never retried.
type AnalyzeService struct {
	acquirer   *ImageAcquirer
	normalizer *ImageNormalizer
	generator  *PromptGenerator
	archiver   Archiver
	timeout    time.Duration
}

// NewAnalyzeService wires the pipeline. archiver may be nil.
// Parameters:
//   - acquirer: URL and upload loader.
//   - normalizer: decoder and re-encoder.
//   - generator: rate-limited provider client.
//   - archiver: optional analysis archive.
//   - timeout: budget for a whole request; zero disables it.
// Returns:
//   - *AnalyzeService: ready-to-use pipeline.
func NewAnalyzeService(
	acquirer *ImageAcquirer,
	normalizer *ImageNormalizer,
	generator *PromptGenerator,
	archiver Archiver,
	timeout time.Duration,
) *AnalyzeService {
	return &AnalyzeService{
		acquirer:   acquirer,
		normalizer: normalizer,
		generator:  generator,
		archiver:   archiver,
		timeout:    timeout,
	}
}

// Configured reports whether the vision provider has a credential.
func (s *AnalyzeService) Configured() bool {
	return s.generator.Configured()
}

// MaxBytes returns the image size ceiling.
func (s *AnalyzeService) MaxBytes() int64 {
	return s.acquirer.MaxBytes()
}

// Analyze produces a clean prompt for the image in input.
func (s *AnalyzeService) Analyze(ctx context.Context, input AnalyzeInput) (*AnalyzeResult, error) {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx = logger.SetComponent(ctx, "analyze")

	ctx = enterStage(ctx, domain.StageAcquiring)
	blob, err := s.acquirer.Acquire(ctx, input)
	if err != nil {
		return nil, s.fail(ctx, start, err)
	}
	ctx = logger.SetSource(ctx, blob.Source)

	ctx = enterStage(ctx, domain.StageNormalizing)
	img, err := s.normalizer.Normalize(blob)
	if err != nil {
		return nil, s.fail(ctx, start, err)
	}
	logger.With(logger.Fields{
		"original_size":   len(blob.Data),
		"normalized_size": len(img.Data),
		"passthrough":     img.Passthrough,
	}).Info(ctx, "Image normalized")

	raw, err := s.generator.Generate(ctx, img)
	if err != nil {
		return nil, s.fail(ctx, start, err)
	}

	ctx = enterStage(ctx, domain.StageCleaningText)
	prompt := prompts.Clean(raw)
	if prompt == "" {
		return nil, s.fail(ctx, start, fmt.Errorf("%w: provider response was empty after cleanup", domain.ErrGeneration))
	}

	result := &AnalyzeResult{
		Prompt:   prompt,
		Model:    s.generator.Model(),
		Duration: time.Since(start),
	}

	if s.archiver != nil {
		result.AnalysisID = s.archive(ctx, &ArchiveRecord{
			Blob:     blob,
			Image:    img,
			Prompt:   prompt,
			Model:    result.Model,
			Duration: result.Duration,
		})
	}

	ctx = enterStage(ctx, domain.StageDone)
	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		logger.FieldSize:       len(prompt),
	}).Info(ctx, "Analysis completed")

	return result, nil
}

// archive records rec and returns its ID. Failures are logged only.
func (s *AnalyzeService) archive(ctx context.Context, rec *ArchiveRecord) string {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	a, err := s.archiver.Record(actx, rec)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to archive analysis: %v", err)
		return ""
	}
	return a.ID
}

func (s *AnalyzeService) fail(ctx context.Context, start time.Time, err error) error {
	ctx = logger.SetStage(ctx, string(domain.StageFailed))
	entry := logger.With(logger.Fields{logger.FieldErrorKind: domain.Kind(err)}).
		WithDuration(time.Since(start).Milliseconds())
	if domain.StatusCode(err) >= 500 {
		entry.Error(ctx, "Analysis failed: %v", err)
	} else {
		entry.Warn(ctx, "Analysis rejected: %v", err)
	}
	return err
}

func enterStage(ctx context.Context, stage domain.Stage) context.Context {
	ctx = logger.SetStage(ctx, string(stage))
	logger.CtxDebug(ctx, "Entering stage %s", stage)
	return ctx
}
