package repository

import (
	"context"

	"github.com/timmy/linkweaver/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlacementRepository handles placement assignment rows.
type PlacementRepository struct {
	db *gorm.DB
}

// NewPlacementRepository creates a new PlacementRepository.
func NewPlacementRepository(db *gorm.DB) *PlacementRepository {
	return &PlacementRepository{db: db}
}

// CreateIfAbsent inserts the assignment unless its (fanout, band, slot) already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - a: assignment to insert; its ID is used only when the slot is new.
// Returns:
//   - *domain.PlacementAssignment: the stored row, new or pre-existing.
//   - bool: true if this call inserted the row.
//   - error: non-nil if the insert or the follow-up lookup fails.
func (r *PlacementRepository) CreateIfAbsent(ctx context.Context, a *domain.PlacementAssignment) (*domain.PlacementAssignment, bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fanout_id"}, {Name: "band"}, {Name: "slot"}},
		DoNothing: true,
	}).Create(a)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return a, true, nil
	}

	var existing domain.PlacementAssignment
	if err := db.First(&existing, "fanout_id = ? AND band = ? AND slot = ?", a.FanoutID, a.Band, a.Slot).Error; err != nil {
		return nil, false, notFound(err)
	}
	return &existing, false, nil
}

// GetByID retrieves an assignment by its ID.
func (r *PlacementRepository) GetByID(ctx context.Context, id string) (*domain.PlacementAssignment, error) {
	var a domain.PlacementAssignment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// ListByRequirement returns the assignments produced for a requirement across all fan-outs.
func (r *PlacementRepository) ListByRequirement(ctx context.Context, requirementID string) ([]domain.PlacementAssignment, error) {
	var out []domain.PlacementAssignment
	err := r.db.WithContext(ctx).
		Where("requirement_id = ?", requirementID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListByProject returns a project's assignments.
func (r *PlacementRepository) ListByProject(ctx context.Context, projectID string) ([]domain.PlacementAssignment, error) {
	var out []domain.PlacementAssignment
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// AttachBlog records the blog generated for an assignment.
func (r *PlacementRepository) AttachBlog(ctx context.Context, id, blogID string) error {
	return r.db.WithContext(ctx).Model(&domain.PlacementAssignment{}).
		Where("id = ?", id).
		Update("blog_id", blogID).Error
}

// CountWithoutBlog counts a project's assignments still waiting for content.
func (r *PlacementRepository) CountWithoutBlog(ctx context.Context, projectID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PlacementAssignment{}).
		Where("project_id = ? AND blog_id IS NULL", projectID).
		Count(&n).Error
	return n, err
}
