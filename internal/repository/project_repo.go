package repository

import (
	"context"

	"github.com/timmy/linkweaver/internal/domain"
	"gorm.io/gorm"
)

// ProjectRepository handles project data operations.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProjectRepository: repository instance bound to db.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project record.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID retrieves a project by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
// Returns:
//   - *domain.Project: project record if found.
//   - error: ErrNotFound if no project has that ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &project, nil
}

// List returns projects newest first.
func (r *ProjectRepository) List(ctx context.Context, limit, offset int) ([]domain.Project, error) {
	var projects []domain.Project
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&projects).Error
	return projects, err
}

// UpdateStatus sets the status and message of a project.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: project ID.
//   - status: new status.
//   - message: human readable progress or failure note.
// Returns:
//   - error: non-nil if the update fails.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id string, status domain.ProjectStatus, message string) error {
	return r.db.WithContext(ctx).Model(&domain.Project{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  status,
			"message": message,
		}).Error
}

// Progress returns a project with its requirement, assignment and blog counts.
func (r *ProjectRepository) Progress(ctx context.Context, id string) (*domain.ProjectProgress, error) {
	project, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	progress := &domain.ProjectProgress{Project: *project}

	db := r.db.WithContext(ctx)
	if err := db.Model(&domain.BacklinkRequirement{}).Where("project_id = ?", id).Count(&progress.Requirements).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.PlacementAssignment{}).Where("project_id = ?", id).Count(&progress.Assignments).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&domain.GeneratedBlog{}).Where("project_id = ?", id).Count(&progress.Blogs).Error; err != nil {
		return nil, err
	}
	return progress, nil
}
