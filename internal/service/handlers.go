package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/generator"
	"github.com/timmy/linkweaver/internal/logger"
	"github.com/timmy/linkweaver/internal/matcher"
	"github.com/timmy/linkweaver/internal/prompts"
	"github.com/timmy/linkweaver/internal/provider"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
)

// SiteMatcher picks candidate sites for one DR band.
type SiteMatcher interface {
	MatchSites(ctx context.Context, q matcher.Query) ([]string, error)
}

// ContentGenerator produces one structured blog post.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt generator.Prompt, schema *provider.JSONSchema, tokenBudget int) (*generator.Result, error)
}

// Availability reports when the credential pool can next take a call.
type Availability interface {
	NextAvailableTime(ctx context.Context) (time.Time, error)
}

// TitleHistory keeps recent titles per site.
type TitleHistory interface {
	Recent(ctx context.Context, siteID string) ([]string, error)
	Push(ctx context.Context, siteID, title string) error
}

// HandlerDeps are the collaborators the job handlers use.
// Archiver may be nil to disable archiving.
type HandlerDeps struct {
	Store     *repository.Store
	Queue     Enqueuer
	Matcher   SiteMatcher
	Generator ContentGenerator
	Pool      Availability
	Titles    TitleHistory
	Archiver  *Archiver
}

// HandlerConfig tunes the job handlers.
type HandlerConfig struct {
	// TokensPerBlog is used when a project has no token budget of its own.
	TokensPerBlog int
	// MinDelay is the shortest reschedule when the pool is exhausted.
	MinDelay time.Duration
}

// JobHandlers runs placement and content jobs.
type JobHandlers struct {
	deps HandlerDeps
	cfg  HandlerConfig
	now  func() time.Time
	pick func(n int) int
}

var _ queue.Handlers = (*JobHandlers)(nil)

// NewJobHandlers creates the job handlers.
func NewJobHandlers(deps HandlerDeps, cfg HandlerConfig) *JobHandlers {
	if cfg.TokensPerBlog <= 0 {
		cfg.TokensPerBlog = 2000
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 30 * time.Second
	}
	return &JobHandlers{deps: deps, cfg: cfg, now: time.Now, pick: rand.IntN}
}

// HandlePlacement matches sites for every band of the requirement, stores one
// assignment per slot and enqueues a content job for each assignment without a blog.
// Slots are keyed by the job ID, so a retried job reuses the rows it already wrote.
func (h *JobHandlers) HandlePlacement(ctx context.Context, job *queue.Job, p domain.PlacementPayload) error {
	ctx = logger.SetProjectID(ctx, p.ProjectID)
	req := p.Requirement

	var created, enqueued int
	for _, band := range domain.DRBands {
		n := req.Count(band)
		if n == 0 {
			continue
		}
		siteIDs, err := h.deps.Matcher.MatchSites(ctx, matcher.BandQuery(p.ProjectID, req, band))
		if err != nil {
			return fmt.Errorf("match %s band: %w", band, err)
		}
		if len(siteIDs) == 0 {
			return fmt.Errorf("no candidate sites for %s band of requirement %s", band, req.ID)
		}

		for slot := 0; slot < n; slot++ {
			a, isNew, err := h.deps.Store.Placements.CreateIfAbsent(ctx, &domain.PlacementAssignment{
				ID:            uuid.New().String(),
				FanoutID:      job.ID,
				Band:          band,
				Slot:          slot,
				RequirementID: req.ID,
				ProjectID:     p.ProjectID,
				SiteID:        siteIDs[h.pick(len(siteIDs))],
			})
			if err != nil {
				return fmt.Errorf("store %s slot %d: %w", band, slot, err)
			}
			if isNew {
				created++
			}
			if a.BlogID != nil {
				continue
			}

			payload := domain.ContentPayload{
				AssignmentID:  a.ID,
				ProjectID:     a.ProjectID,
				RequirementID: a.RequirementID,
				SiteID:        a.SiteID,
			}
			if _, _, err := h.deps.Queue.Enqueue(ctx, payload, queue.WithJobID(a.ID)); err != nil {
				return fmt.Errorf("enqueue content job for %s: %w", a.ID, err)
			}
			enqueued++
		}
	}

	logger.With(nil).WithCount(created).WithField("enqueued", enqueued).Info(ctx, "Placements assigned for requirement %s", req.ID)

	// A project whose rows ask for no placements has no content job to finish it.
	if enqueued == 0 {
		h.markCompleted(ctx, p.ProjectID)
	}
	return nil
}

// HandleContent generates the blog for one assignment. When no credential can
// take the call it asks the queue to retry once the pool recovers.
func (h *JobHandlers) HandleContent(ctx context.Context, job *queue.Job, p domain.ContentPayload) error {
	ctx = logger.SetProjectID(ctx, p.ProjectID)
	store := h.deps.Store

	assignment, err := store.Placements.GetByID(ctx, p.AssignmentID)
	if err != nil {
		return fmt.Errorf("load assignment %s: %w", p.AssignmentID, err)
	}
	if assignment.BlogID != nil {
		logger.CtxInfo(ctx, "Assignment %s already has blog %s", assignment.ID, *assignment.BlogID)
		return nil
	}

	next, err := h.deps.Pool.NextAvailableTime(ctx)
	if err != nil {
		return fmt.Errorf("check credential availability: %w", err)
	}
	if next.After(h.now()) {
		return queue.DelayUntil(next, "no credential available")
	}

	req, err := store.Requirements.GetByID(ctx, assignment.RequirementID)
	if err != nil {
		return fmt.Errorf("load requirement %s: %w", assignment.RequirementID, err)
	}
	site, err := store.Sites.GetByID(ctx, assignment.SiteID)
	if err != nil {
		return fmt.Errorf("load site %s: %w", assignment.SiteID, err)
	}
	project, err := store.Projects.GetByID(ctx, assignment.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", assignment.ProjectID, err)
	}

	recent, err := h.deps.Titles.Recent(ctx, site.ID)
	if err != nil {
		logger.CtxWarn(ctx, "Generating without recent titles: %v", err)
	}

	budget := project.TokenBudget
	if budget <= 0 {
		budget = h.cfg.TokensPerBlog
	}
	prompt := generator.Prompt{
		System: prompts.BlogSystemPrompt,
		User: prompts.BlogUserPrompt(prompts.BlogInput{
			TargetURL:         req.TargetURL,
			PrimaryKeyword:    req.PrimaryKeyword,
			SecondaryKeywords: req.SecondaryKeywords,
			Industry:          req.Industry,
			SiteURL:           site.URL,
			SiteIndustry:      site.Industry,
			RecentTitles:      recent,
			WordBudget:        budget * 3 / 4,
		}),
	}
	schema := &provider.JSONSchema{Name: prompts.BlogSchemaName, Strict: true, Schema: prompts.BlogSchema()}

	result, err := h.deps.Generator.GenerateContent(ctx, prompt, schema, budget)
	if err != nil {
		var genErr *generator.Error
		if errors.As(err, &genErr) && genErr.Kind == generator.KindNoCredential {
			until := h.now().Add(h.cfg.MinDelay)
			if genErr.NextAvailable.After(until) {
				until = genErr.NextAvailable
			}
			return queue.DelayUntil(until, genErr.Error())
		}
		return err
	}

	blog := &domain.GeneratedBlog{
		ID:              uuid.New().String(),
		PlacementID:     assignment.ID,
		RequirementID:   assignment.RequirementID,
		ProjectID:       assignment.ProjectID,
		SiteID:          assignment.SiteID,
		Title:           result.Title,
		Body:            result.Body,
		MetaTitle:       result.MetaTitle,
		MetaDescription: result.MetaDescription,
	}
	var inserted bool
	err = store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if inserted, err = tx.Blogs.CreateIfAbsent(ctx, blog); err != nil || !inserted {
			return err
		}
		return tx.Placements.AttachBlog(ctx, assignment.ID, blog.ID)
	})
	if err != nil {
		return fmt.Errorf("store blog: %w", err)
	}
	if !inserted {
		logger.CtxInfo(ctx, "Blog for assignment %s was stored by another attempt", assignment.ID)
		return nil
	}

	if err := h.deps.Titles.Push(ctx, site.ID, blog.Title); err != nil {
		logger.CtxWarn(ctx, "Failed to remember title: %v", err)
	}
	h.archive(ctx, blog)
	h.markCompleted(ctx, assignment.ProjectID)

	logger.With(logger.Fields{
		"blog_id":       blog.ID,
		"total_tokens":  result.Usage.TotalTokens,
		"assignment_id": assignment.ID,
	}).Info(ctx, "Blog generated")
	return nil
}

func (h *JobHandlers) archive(ctx context.Context, blog *domain.GeneratedBlog) {
	if h.deps.Archiver == nil {
		return
	}
	key, err := h.deps.Archiver.Archive(ctx, blog)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to archive blog %s: %v", blog.ID, err)
		return
	}
	if err := h.deps.Store.Blogs.SetArchiveKey(ctx, blog.ID, key); err != nil {
		logger.CtxWarn(ctx, "Failed to record archive key for blog %s: %v", blog.ID, err)
	}
}

// markCompleted flips the project to completed once every slot of its
// fan-out exists and has a blog. A project with no slots completes as soon as
// its placement jobs have run.
func (h *JobHandlers) markCompleted(ctx context.Context, projectID string) {
	store := h.deps.Store
	pending, err := store.Placements.CountWithoutBlog(ctx, projectID)
	if err != nil || pending > 0 {
		return
	}
	progress, err := store.Projects.Progress(ctx, projectID)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to load project progress: %v", err)
		return
	}
	slots, err := store.Requirements.SumSlots(ctx, projectID)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to count project slots: %v", err)
		return
	}
	if progress.Assignments < slots || progress.Status == domain.ProjectStatusCompleted {
		return
	}
	if err := store.Projects.UpdateStatus(ctx, projectID, domain.ProjectStatusCompleted, "completed"); err != nil {
		logger.CtxWarn(ctx, "Failed to mark project completed: %v", err)
		return
	}
	logger.CtxInfo(ctx, "Project completed with %d blogs", progress.Blogs)
}
