package repository

import (
	"context"
	"errors"

	"github.com/timmy/imgprompt/internal/domain"
	"gorm.io/gorm"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Create(ctx context.Context, a *domain.Analysis) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.Analysis, error) {
	var a domain.Analysis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindByMD5 returns the most recent analysis of identical image bytes, or nil.
func (r *AnalysisRepository) FindByMD5(ctx context.Context, md5Hash string) (*domain.Analysis, error) {
	var a domain.Analysis
	err := r.db.WithContext(ctx).
		Where("md5_hash = ?", md5Hash).
		Order("created_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns analyses newest first.
func (r *AnalysisRepository) List(ctx context.Context, limit, offset int) ([]domain.Analysis, error) {
	var out []domain.Analysis
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *AnalysisRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Analysis{}).Count(&count).Error
	return count, err
}
