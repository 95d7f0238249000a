package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/queue"
	"github.com/timmy/linkweaver/internal/repository"
	"github.com/timmy/linkweaver/internal/repository/repotest"
)

func validInput() CreateProjectInput {
	return CreateProjectInput{
		Name:        "acme",
		TokenBudget: 800,
		Backlinks:   []BacklinkRow{backlinkRow("2", "0", "1")},
		Websites:    []WebsiteRow{website("https://blog-a.test", 10, "pets")},
	}
}

func TestCreateProjectValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateProjectInput)
	}{
		{name: "empty name", mutate: func(in *CreateProjectInput) { in.Name = " " }},
		{name: "zero token budget", mutate: func(in *CreateProjectInput) { in.TokenBudget = 0 }},
		{name: "no backlinks", mutate: func(in *CreateProjectInput) { in.Backlinks = nil }},
		{name: "relative backlink", mutate: func(in *CreateProjectInput) { in.Backlinks[0].Backlink = "/landing" }},
		{name: "empty keyword", mutate: func(in *CreateProjectInput) { in.Backlinks[0].PrimaryKeyword = "" }},
		{name: "non-integer count", mutate: func(in *CreateProjectInput) { in.Backlinks[0].MidDR = "two" }},
		{name: "negative count", mutate: func(in *CreateProjectInput) { in.Backlinks[0].HighDR = "-1" }},
		{name: "bad website url", mutate: func(in *CreateProjectInput) { in.Websites[0].URL = "ftp://x.test" }},
		{name: "website dr above 100", mutate: func(in *CreateProjectInput) { in.Websites[0].DR = 101 }},
		{name: "count above band cap", mutate: func(in *CreateProjectInput) { in.Backlinks[0].LowDR = "11" }},
		{name: "huge count", mutate: func(in *CreateProjectInput) { in.Backlinks[0].MidDR = "100000000" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := validInput()
			tt.mutate(&in)

			_, err := h.orch.CreateProject(context.Background(), in)
			require.Error(t, err)
			assert.True(t, IsInvalidInput(err))

			projects, err := h.store.Projects.List(context.Background(), 10, 0)
			require.NoError(t, err)
			assert.Empty(t, projects)

			stats, err := h.queue.Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.Waiting)
		})
	}
}

func TestCreateProjectPersistsAndEnqueues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := validInput()
	in.Backlinks = append(in.Backlinks, backlinkRow("", "1", ""))

	id, err := h.orch.CreateProject(ctx, in)
	require.NoError(t, err)

	progress, err := h.orch.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusBuilding, progress.Status)
	assert.Equal(t, 800, progress.TokenBudget)
	assert.EqualValues(t, 2, progress.Requirements)

	reqs, err := h.store.Requirements.ListByProject(ctx, id)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.StringArray{"dogs", "cats"}, reqs[0].SecondaryKeywords)

	sites, err := h.store.Sites.ListByProject(ctx, id)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, 10, sites[0].DR)

	stats, err := h.queue.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Waiting)
}

func TestCreateProjectValidationNamesFields(t *testing.T) {
	h := newHarness(t)
	in := validInput()
	in.Backlinks = append(in.Backlinks, BacklinkRow{Backlink: "nope", LowDR: "x"})
	in.Websites[0].URL = "mailto:ops@blog-a.test"

	_, err := h.orch.CreateProject(context.Background(), in)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `data[1].backlink failed "http_url" check`)
	assert.Contains(t, msg, `data[1].primary_keyword failed "required" check`)
	assert.Contains(t, msg, `data[1].dr_0_30: "x" is not an integer`)
	assert.Contains(t, msg, `website[0].url failed "http_url" check`)
}

func TestCreateProjectTrimsCells(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := validInput()
	in.Name = "  acme  "
	in.Backlinks[0].Backlink = " https://client.test/landing "
	in.Backlinks[0].LowDR = "10"

	id, err := h.orch.CreateProject(ctx, in)
	require.NoError(t, err)

	progress, err := h.orch.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "acme", progress.Name)
	reqs, err := h.store.Requirements.ListByProject(ctx, id)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://client.test/landing", reqs[0].TargetURL)
	assert.Equal(t, 10, reqs[0].LowDR)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, domain.JobPayload, ...queue.EnqueueOption) (string, bool, error) {
	return "", false, errors.New("redis down")
}

func TestCreateProjectEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	orch := NewOrchestrator(store, failingEnqueuer{}, OrchestratorConfig{})

	_, err := orch.CreateProject(ctx, validInput())
	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, CodeEnqueue, coded.Code)

	projects, err := store.Projects.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, domain.ProjectStatusFailed, projects[0].Status)
}

func TestRegenerateUnknownProject(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Regenerate(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = h.orch.ListBlogs(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAddWebsitesArePoolWide(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.orch.AddWebsites(ctx, nil)
	assert.True(t, IsInvalidInput(err))
	_, err = h.orch.AddWebsites(ctx, []WebsiteRow{website("not a url", 10, "x")})
	assert.True(t, IsInvalidInput(err))

	added, err := h.orch.AddWebsites(ctx, []WebsiteRow{website("https://pool.test", 72.9, "pets")})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Nil(t, added[0].ProjectID)
	assert.Equal(t, 72, added[0].DR)

	pool, err := h.orch.ListWebsites(ctx)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "https://pool.test", pool[0].URL)
}
