package repository

import (
	"context"

	"github.com/timmy/linkweaver/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlogRepository handles generated blog rows.
type BlogRepository struct {
	db *gorm.DB
}

// NewBlogRepository creates a new BlogRepository.
func NewBlogRepository(db *gorm.DB) *BlogRepository {
	return &BlogRepository{db: db}
}

// CreateIfAbsent inserts the blog unless its placement already has one.
// It returns true when this call inserted the row.
func (r *BlogRepository) CreateIfAbsent(ctx context.Context, blog *domain.GeneratedBlog) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "placement_id"}},
		DoNothing: true,
	}).Create(blog)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetByID retrieves a blog by its ID.
func (r *BlogRepository) GetByID(ctx context.Context, id string) (*domain.GeneratedBlog, error) {
	var blog domain.GeneratedBlog
	if err := r.db.WithContext(ctx).First(&blog, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &blog, nil
}

// ListByProject returns a project's blogs in creation order.
func (r *BlogRepository) ListByProject(ctx context.Context, projectID string) ([]domain.GeneratedBlog, error) {
	var blogs []domain.GeneratedBlog
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&blogs).Error
	return blogs, err
}

// SetArchiveKey stores where the blog was archived.
func (r *BlogRepository) SetArchiveKey(ctx context.Context, id, key string) error {
	return r.db.WithContext(ctx).Model(&domain.GeneratedBlog{}).
		Where("id = ?", id).
		Update("archive_key", key).Error
}
