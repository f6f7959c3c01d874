// Package app assembles the analysis pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/logger"
	"github.com/timmy/imgprompt/internal/ratelimit"
	"github.com/timmy/imgprompt/internal/repository"
	"github.com/timmy/imgprompt/internal/service"
	"github.com/timmy/imgprompt/internal/storage"
)

// App holds the wired services and the resources they own.
type App struct {
	Analyze  *service.AnalyzeService
	Archive  *service.ArchiveService
	RateRule ratelimit.Rule

	closers []func() error
}

// New builds every service named by cfg. Call Close when done.
// Parameters:
//   - ctx: context for start-up checks (Redis ping, bucket creation).
//   - cfg: loaded configuration.
// Returns:
//   - *App: wired services.
//   - error: non-nil if a configured backend cannot be reached.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		RateRule: ratelimit.Rule{Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window},
	}

	limiter, err := a.newLimiter(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	describer, err := service.NewDescriber(cfg.VLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !describer.Configured() {
		logger.Warn("Vision provider API key is not set; analyze requests will fail until it is configured")
	}

	if cfg.Archive.Enabled {
		archive, err := a.newArchive(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Archive = archive
	}

	var archiver service.Archiver
	if a.Archive != nil {
		archiver = a.Archive
	}

	a.Analyze = service.NewAnalyzeService(
		service.NewImageAcquirer(service.AcquirerConfig{
			MaxBytes:  cfg.Image.MaxBytes,
			Timeout:   cfg.Image.DownloadTimeout,
			UserAgent: cfg.Image.UserAgent,
		}),
		service.NewImageNormalizer(service.NormalizerConfig{
			MaxDimension:           cfg.Image.MaxDimension,
			JPEGQuality:            cfg.Image.JPEGQuality,
			PassthroughUndecodable: cfg.Image.PassthroughUndecodable,
		}),
		service.NewPromptGenerator(limiter, describer),
		archiver,
		cfg.Analyze.RequestTimeout,
	)

	logger.GetDefault().WithFields(logger.Fields{
		"provider":        cfg.VLM.Provider,
		"model":           describer.Model(),
		"rate_limit":      a.RateRule.Requests,
		"rate_window":     a.RateRule.Window.String(),
		"rate_backend":    cfg.RateLimit.Backend,
		"archive_enabled": a.Archive != nil,
	}).Info("Pipeline configured")

	return a, nil
}

func (a *App) newLimiter(cfg *config.Config) (ratelimit.Limiter, error) {
	if cfg.RateLimit.Backend == "redis" {
		rw, err := ratelimit.NewRedisWindow(ratelimit.RedisConfig{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
			Key:      cfg.RateLimit.Redis.Key,
		}, a.RateRule)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis rate window: %w", err)
		}
		a.closers = append(a.closers, rw.Close)
		return rw, nil
	}

	fw, err := ratelimit.NewFixedWindow(a.RateRule, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate window: %w", err)
	}
	return fw, nil
}

func (a *App) newArchive(ctx context.Context, cfg *config.Config) (*service.ArchiveService, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	// Without storage credentials only metadata is archived
	var store storage.ImageStore
	if cfg.Storage.Endpoint != "" || cfg.Storage.AccessKey != "" {
		s3Store, err := storage.NewImageStore(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s3Store.EnsureBucket(bucketCtx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
		store = s3Store
	} else {
		logger.Warn("Archive enabled without object storage; images will not be kept")
	}

	return service.NewArchiveService(repository.NewAnalysisRepository(db), store), nil
}

// Close releases owned resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
