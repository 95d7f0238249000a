package repository

import (
	"context"

	"github.com/timmy/linkweaver/internal/domain"
	"gorm.io/gorm"
)

// SiteFilter narrows candidate sites for matching.
// Sites owned by ProjectID and pool-wide sites are both returned.
type SiteFilter struct {
	ProjectID string
	MinDR     int
	MaxDR     int
	// IncludeMax makes MaxDR inclusive; otherwise the range is [MinDR, MaxDR).
	IncludeMax bool
	// Limit caps the result; zero means no cap.
	Limit int
}

// SiteRepository handles candidate site data operations.
type SiteRepository struct {
	db *gorm.DB
}

// NewSiteRepository creates a new SiteRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SiteRepository: repository instance bound to db.
func NewSiteRepository(db *gorm.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// CreateBatch inserts sites in one statement.
func (r *SiteRepository) CreateBatch(ctx context.Context, sites []domain.CandidateSite) error {
	if len(sites) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&sites).Error
}

// GetByID retrieves a site by its ID.
func (r *SiteRepository) GetByID(ctx context.Context, id string) (*domain.CandidateSite, error) {
	var site domain.CandidateSite
	if err := r.db.WithContext(ctx).First(&site, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &site, nil
}

// Find returns sites matching f, highest DR first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - f: project scope, DR range and optional limit.
// Returns:
//   - []domain.CandidateSite: matching sites ordered by DR descending, then ID.
//   - error: non-nil if the query fails.
func (r *SiteRepository) Find(ctx context.Context, f SiteFilter) ([]domain.CandidateSite, error) {
	q := r.db.WithContext(ctx).
		Where("(project_id = ? OR project_id IS NULL)", f.ProjectID).
		Where("dr >= ?", f.MinDR)
	if f.IncludeMax {
		q = q.Where("dr <= ?", f.MaxDR)
	} else {
		q = q.Where("dr < ?", f.MaxDR)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var sites []domain.CandidateSite
	err := q.Order("dr DESC, id ASC").Find(&sites).Error
	return sites, err
}

// ListPoolWide returns the sites that belong to no project.
func (r *SiteRepository) ListPoolWide(ctx context.Context) ([]domain.CandidateSite, error) {
	var sites []domain.CandidateSite
	err := r.db.WithContext(ctx).
		Where("project_id IS NULL").
		Order("dr DESC, id ASC").
		Find(&sites).Error
	return sites, err
}

// ListByProject returns the sites uploaded with a project.
func (r *SiteRepository) ListByProject(ctx context.Context, projectID string) ([]domain.CandidateSite, error) {
	var sites []domain.CandidateSite
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("dr DESC, id ASC").
		Find(&sites).Error
	return sites, err
}
