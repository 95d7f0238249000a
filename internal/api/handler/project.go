package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/service"
)

// ProjectService is the orchestrator surface the project routes use.
type ProjectService interface {
	CreateProject(ctx context.Context, in service.CreateProjectInput) (string, error)
	Regenerate(ctx context.Context, projectID string) (int, error)
	GetProject(ctx context.Context, id string) (*domain.ProjectProgress, error)
	ListProjects(ctx context.Context, limit, offset int) ([]domain.Project, error)
	ListBlogs(ctx context.Context, projectID string) ([]domain.GeneratedBlog, error)
	AddWebsites(ctx context.Context, rows []service.WebsiteRow) ([]domain.CandidateSite, error)
	ListWebsites(ctx context.Context) ([]domain.CandidateSite, error)
}

var _ ProjectService = (*service.Orchestrator)(nil)

// ProjectHandler handles project and website endpoints.
type ProjectHandler struct {
	projects ProjectService
}

// NewProjectHandler creates a new project handler.
// Parameters:
//   - projects: orchestrator used to create and read projects.
// Returns:
//   - *ProjectHandler: initialized handler.
func NewProjectHandler(projects ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProject handles POST /projects.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	// Field rules are validate tags checked by the orchestrator, so bad rows come back as ERR001.
	var in service.CreateProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	id, err := h.projects.CreateProject(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uuid": id})
}

// ListProjects handles GET /projects.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	projects, err := h.projects.ListProjects(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetProject handles GET /project/:id.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	progress, err := h.projects.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// ListBlogs handles GET /project/blogs/:id.
func (h *ProjectHandler) ListBlogs(c *gin.Context) {
	blogs, err := h.projects.ListBlogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blogs": blogs})
}

// Regenerate handles POST /project/:id/regenerate.
func (h *ProjectHandler) Regenerate(c *gin.Context) {
	n, err := h.projects.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"placement_jobs": n})
}

// AddWebsites handles POST /websites. The sites join the pool shared by all projects.
func (h *ProjectHandler) AddWebsites(c *gin.Context) {
	var rows []service.WebsiteRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sites, err := h.projects.AddWebsites(c.Request.Context(), rows)
	if err != nil {
		respondError(c, err)
		return
	}
	ids := make([]string, 0, len(sites))
	for _, s := range sites {
		ids = append(ids, s.ID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ids": ids})
}

// ListWebsites handles GET /websites.
func (h *ProjectHandler) ListWebsites(c *gin.Context) {
	sites, err := h.projects.ListWebsites(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"websites": sites})
}
