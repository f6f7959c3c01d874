package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/imgprompt/internal/domain"
	"github.com/timmy/imgprompt/internal/logger"
	"github.com/timmy/imgprompt/internal/storage"
)

// AnalysisStore persists archived analyses.
type AnalysisStore interface {
	Create(ctx context.Context, a *domain.Analysis) error
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	FindByMD5(ctx context.Context, md5Hash string) (*domain.Analysis, error)
	List(ctx context.Context, limit, offset int) ([]domain.Analysis, error)
	Count(ctx context.Context) (int64, error)
}

// ArchiveRecord is everything known about one successful analysis.
type ArchiveRecord struct {
	Blob     *domain.ImageBlob
	Image    *domain.NormalizedImage
	Prompt   string
	Model    string
	Duration time.Duration
}

// Archiver records successful analyses. A nil Archiver disables the archive.
type Archiver interface {
	Record(ctx context.Context, rec *ArchiveRecord) (*domain.Analysis, error)
}

// ArchiveService stores analysis metadata in the database and the normalized
// image in object storage.
type ArchiveService struct {
	repo  AnalysisStore
	store storage.ImageStore
}

// NewArchiveService creates an archive. store may be nil, in which case only
// metadata is kept.
func NewArchiveService(repo AnalysisStore, store storage.ImageStore) *ArchiveService {
	return &ArchiveService{repo: repo, store: store}
}

func (s *ArchiveService) Record(ctx context.Context, rec *ArchiveRecord) (*domain.Analysis, error) {
	sum := md5.Sum(rec.Image.Data)
	md5Hash := hex.EncodeToString(sum[:])

	a := &domain.Analysis{
		ID:             uuid.New().String(),
		SourceType:     rec.Blob.Source,
		MIMEType:       rec.Blob.MIMEType,
		OriginalSize:   int64(len(rec.Blob.Data)),
		NormalizedSize: int64(len(rec.Image.Data)),
		Width:          rec.Image.Width,
		Height:         rec.Image.Height,
		MD5Hash:        md5Hash,
		Prompt:         rec.Prompt,
		Model:          rec.Model,
		DurationMs:     rec.Duration.Milliseconds(),
	}
	if rec.Blob.Source == domain.SourceURL {
		a.SourceURL = rec.Blob.Origin
	} else {
		a.Filename = rec.Blob.Origin
	}

	uploaded := false
	if s.store != nil {
		key, err := s.storeImage(ctx, md5Hash, rec.Image)
		if err != nil {
			return nil, err
		}
		uploaded = key.uploaded
		a.StorageKey = key.name
		a.StorageURL = s.store.URL(key.name)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if uploaded {
			s.rollback(ctx, a)
		}
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	return a, nil
}

type storedKey struct {
	name     string
	uploaded bool
}

// storeImage reuses the object of an earlier analysis of the same bytes and
// uploads only when no row or object exists yet.
func (s *ArchiveService) storeImage(ctx context.Context, md5Hash string, img *domain.NormalizedImage) (storedKey, error) {
	prior, err := s.repo.FindByMD5(ctx, md5Hash)
	if err != nil {
		return storedKey{}, fmt.Errorf("failed to look up archived image: %w", err)
	}
	if prior != nil && prior.StorageKey != "" {
		logger.FromContext(ctx).WithField("storage_key", prior.StorageKey).Debug("Image already archived, reusing object")
		return storedKey{name: prior.StorageKey}, nil
	}

	key := storage.ObjectKey(md5Hash, ExtensionFor(img.MIMEType))
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return storedKey{}, fmt.Errorf("failed to check storage existence: %w", err)
	}
	if exists {
		logger.FromContext(ctx).WithField("storage_key", key).Debug("Image already archived, skipping upload")
		return storedKey{name: key}, nil
	}
	if err := s.store.Put(ctx, key, img.Data, img.MIMEType); err != nil {
		return storedKey{}, fmt.Errorf("failed to upload to storage: %w", err)
	}
	return storedKey{name: key, uploaded: true}, nil
}

// rollback removes an object uploaded for a row that was never saved. Keys are
// content addressed, so the object stays when another row already points at it.
func (s *ArchiveService) rollback(ctx context.Context, a *domain.Analysis) {
	log := logger.FromContext(ctx).WithField("storage_key", a.StorageKey)
	other, err := s.repo.FindByMD5(ctx, a.MD5Hash)
	if err != nil {
		log.WithError(err).Warn("Keeping archived image, cannot check for other rows")
		return
	}
	if other != nil && other.StorageKey == a.StorageKey {
		return
	}
	if err := s.store.Delete(ctx, a.StorageKey); err != nil {
		log.WithError(err).Warn("Failed to roll back archived image")
	}
}

func (s *ArchiveService) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fillURL(a)
	return a, nil
}

// List returns a page of analyses, newest first, and the total count.
func (s *ArchiveService) List(ctx context.Context, limit, offset int) ([]domain.Analysis, int64, error) {
	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list analyses: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	for i := range items {
		s.fillURL(&items[i])
	}
	return items, total, nil
}

func (s *ArchiveService) fillURL(a *domain.Analysis) {
	if s.store != nil && a.StorageKey != "" {
		a.StorageURL = s.store.URL(a.StorageKey)
	}
}
