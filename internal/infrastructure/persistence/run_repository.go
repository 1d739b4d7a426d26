package persistence

import (
	"context"
	"errors"

	"github.com/erp/agreementclone/internal/domain/pipeline"
	"github.com/erp/agreementclone/internal/domain/shared"
	"github.com/erp/agreementclone/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRunRepository implements pipeline.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Save saves a run (create or update)
func (r *GormRunRepository) Save(ctx context.Context, run *pipeline.Run) error {
	return r.db.WithContext(ctx).Save(models.RunModelFromDomain(run)).Error
}

// FindByAgreement returns the runs of an agreement, newest first
func (r *GormRunRepository) FindByAgreement(ctx context.Context, agreementID string, limit int) ([]pipeline.Run, error) {
	query := r.db.WithContext(ctx).
		Where("agreement_id = ?", agreementID).
		Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runModels []models.RunModel
	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]pipeline.Run, len(runModels))
	for i := range runModels {
		runs[i] = *runModels[i].ToDomain()
	}
	return runs, nil
}

// Latest returns the newest run of a stage for an agreement
func (r *GormRunRepository) Latest(ctx context.Context, agreementID string, stage pipeline.Stage) (*pipeline.Run, error) {
	var model models.RunModel
	if err := r.db.WithContext(ctx).
		Where("agreement_id = ? AND stage = ?", agreementID, stage).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Compile-time interface compliance check
var _ pipeline.RunRepository = (*GormRunRepository)(nil)
