package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
)

// Enqueuer adds jobs to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload domain.JobPayload, opts ...queue.EnqueueOption) (string, bool, error)
}

var _ Enqueuer = (*queue.Queue)(nil)

// OrchestratorConfig tunes project intake.
type OrchestratorConfig struct {
	// MaxSlotsPerBand caps the placement count one backlink row may ask for in a single DR band.
	MaxSlotsPerBand int
}

// DefaultMaxSlotsPerBand applies when OrchestratorConfig.MaxSlotsPerBand is unset.
const DefaultMaxSlotsPerBand = 100

// Orchestrator turns project submissions into persisted records and placement jobs.
type Orchestrator struct {
	store *repository.Store
	queue Enqueuer
	cfg   OrchestratorConfig
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(store *repository.Store, q Enqueuer, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxSlotsPerBand <= 0 {
		cfg.MaxSlotsPerBand = DefaultMaxSlotsPerBand
	}
	return &Orchestrator{store: store, queue: q, cfg: cfg}
}

// CreateProject validates the submission, persists the project with its sites
// and requirements in one transaction, then enqueues one placement job per requirement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - in: project name, token budget, backlink rows and website rows.
// Returns:
//   - string: the new project ID.
//   - error: a *Error whose Code names the failed step.
func (o *Orchestrator) CreateProject(ctx context.Context, in CreateProjectInput) (string, error) {
	in.normalize()
	if err := in.validate(o.cfg.MaxSlotsPerBand); err != nil {
		return "", newError(CodeInvalidInput, err.Error(), nil)
	}

	project := &domain.Project{
		ID:          uuid.New().String(),
		Name:        in.Name,
		TokenBudget: in.TokenBudget,
		Status:      domain.ProjectStatusBuilding,
		Message:     "building",
	}
	ctx = logger.SetProjectID(ctx, project.ID)

	owner := project.ID
	sites := make([]domain.CandidateSite, 0, len(in.Websites))
	for _, w := range in.Websites {
		sites = append(sites, w.site(uuid.New().String(), &owner))
	}
	reqs := make([]domain.BacklinkRequirement, 0, len(in.Backlinks))
	for _, row := range in.Backlinks {
		req, err := row.requirement(uuid.New().String(), project.ID, o.cfg.MaxSlotsPerBand)
		if err != nil {
			return "", newError(CodeInvalidInput, err.Error(), nil)
		}
		reqs = append(reqs, req)
	}

	err := o.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Projects.Create(ctx, project); err != nil {
			return newError(CodeStoreProject, "failed to create project", err)
		}
		if err := tx.Sites.CreateBatch(ctx, sites); err != nil {
			return newError(CodeStoreSites, "failed to store websites", err)
		}
		if err := tx.Requirements.CreateBatch(ctx, reqs); err != nil {
			return newError(CodeStoreRequirement, "failed to store backlinks", err)
		}
		return nil
	})
	if err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			err = newError(CodeStoreProject, "failed to create project", err)
		}
		logger.FromContext(ctx).WithError(err).Error("Project was not created")
		return "", err
	}

	if err := o.enqueuePlacements(ctx, project.ID, reqs); err != nil {
		return "", err
	}

	logger.With(nil).WithCount(len(reqs)).WithField("sites", len(sites)).Info(ctx, "Project created")
	return project.ID, nil
}

// Regenerate re-reads a project's requirements and runs the whole placement
// fan-out again. Earlier assignments and blogs are kept, so every call adds a
// full new set. It returns the number of placement jobs enqueued.
func (o *Orchestrator) Regenerate(ctx context.Context, projectID string) (int, error) {
	ctx = logger.SetProjectID(ctx, projectID)
	if _, err := o.store.Projects.GetByID(ctx, projectID); err != nil {
		return 0, err
	}
	reqs, err := o.store.Requirements.ListByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("list requirements: %w", err)
	}
	if err := o.store.Projects.UpdateStatus(ctx, projectID, domain.ProjectStatusBuilding, "regenerating"); err != nil {
		return 0, fmt.Errorf("update project status: %w", err)
	}
	if err := o.enqueuePlacements(ctx, projectID, reqs); err != nil {
		return 0, err
	}
	logger.CtxInfo(ctx, "Regenerating project: %d placement jobs", len(reqs))
	return len(reqs), nil
}

func (o *Orchestrator) enqueuePlacements(ctx context.Context, projectID string, reqs []domain.BacklinkRequirement) error {
	for _, req := range reqs {
		_, _, err := o.queue.Enqueue(ctx, domain.PlacementPayload{ProjectID: projectID, Requirement: req})
		if err == nil {
			continue
		}
		logger.FromContext(ctx).WithError(err).Errorf("Failed to enqueue placement job for requirement %s", req.ID)
		if serr := o.store.Projects.UpdateStatus(ctx, projectID, domain.ProjectStatusFailed, "failed to enqueue placement jobs"); serr != nil {
			logger.CtxError(ctx, "Failed to mark project failed: %v", serr)
		}
		return newError(CodeEnqueue, "failed to schedule project work", err)
	}
	return nil
}

// GetProject returns a project with its progress counters.
func (o *Orchestrator) GetProject(ctx context.Context, id string) (*domain.ProjectProgress, error) {
	return o.store.Projects.Progress(ctx, id)
}

// ListProjects returns projects newest first.
func (o *Orchestrator) ListProjects(ctx context.Context, limit, offset int) ([]domain.Project, error) {
	return o.store.Projects.List(ctx, limit, offset)
}

// ListBlogs returns the blogs generated for a project.
func (o *Orchestrator) ListBlogs(ctx context.Context, projectID string) ([]domain.GeneratedBlog, error) {
	if _, err := o.store.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return o.store.Blogs.ListByProject(ctx, projectID)
}

// AddWebsites stores pool-wide candidate sites, which every project can match against.
func (o *Orchestrator) AddWebsites(ctx context.Context, rows []WebsiteRow) ([]domain.CandidateSite, error) {
	if len(rows) == 0 {
		return nil, newError(CodeInvalidInput, "at least one website is required", nil)
	}
	normalizeWebsites(rows)
	if err := validateWebsites(rows); err != nil {
		return nil, newError(CodeInvalidInput, err.Error(), nil)
	}

	sites := make([]domain.CandidateSite, 0, len(rows))
	for _, row := range rows {
		sites = append(sites, row.site(uuid.New().String(), nil))
	}
	if err := o.store.Sites.CreateBatch(ctx, sites); err != nil {
		return nil, newError(CodeStoreSites, "failed to store websites", err)
	}
	logger.With(nil).WithCount(len(sites)).Info(ctx, "Pool-wide websites added")
	return sites, nil
}

// ListWebsites returns the pool-wide candidate sites.
func (o *Orchestrator) ListWebsites(ctx context.Context) ([]domain.CandidateSite, error) {
	return o.store.Sites.ListPoolWide(ctx)
}
