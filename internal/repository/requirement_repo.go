package repository

import (
	"context"

	"github.com/timmy/linkweaver/internal/domain"
	"gorm.io/gorm"
)

// RequirementRepository handles backlink requirement rows.
type RequirementRepository struct {
	db *gorm.DB
}

// NewRequirementRepository creates a new RequirementRepository.
func NewRequirementRepository(db *gorm.DB) *RequirementRepository {
	return &RequirementRepository{db: db}
}

// CreateBatch inserts requirements in one statement.
func (r *RequirementRepository) CreateBatch(ctx context.Context, reqs []domain.BacklinkRequirement) error {
	if len(reqs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&reqs).Error
}

// GetByID retrieves a requirement by its ID.
func (r *RequirementRepository) GetByID(ctx context.Context, id string) (*domain.BacklinkRequirement, error) {
	var req domain.BacklinkRequirement
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

// ListByProject returns a project's requirements in creation order.
func (r *RequirementRepository) ListByProject(ctx context.Context, projectID string) ([]domain.BacklinkRequirement, error) {
	var reqs []domain.BacklinkRequirement
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&reqs).Error
	return reqs, err
}

// SumSlots returns the number of placement slots one fan-out of the project produces.
func (r *RequirementRepository) SumSlots(ctx context.Context, projectID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.BacklinkRequirement{}).
		Select("COALESCE(SUM(low_dr + mid_dr + high_dr), 0)").
		Where("project_id = ?", projectID).
		Scan(&n).Error
	return n, err
}
