package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/keypool"
)

// KeyPool is the credential pool surface the key and info routes use.
type KeyPool interface {
	AddCredential(ctx context.Context, key string) (*domain.Credential, error)
	RemoveCredential(ctx context.Context, key string) error
	Credentials(ctx context.Context) ([]domain.Credential, error)
	RefreshKeys(ctx context.Context) (keypool.RefreshReport, error)
	TotalTokensRemaining(ctx context.Context) (int64, error)
}

var _ KeyPool = (*keypool.Manager)(nil)

// KeyHandler handles credential pool endpoints.
type KeyHandler struct {
	pool KeyPool
}

// NewKeyHandler creates a new key handler.
func NewKeyHandler(pool KeyPool) *KeyHandler {
	return &KeyHandler{pool: pool}
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

// AddKey handles POST /keys. The key is probed before it is stored.
func (h *KeyHandler) AddKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	cred, err := h.pool.AddCredential(c.Request.Context(), req.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, domain.NewCredentialView(*cred))
}

// RemoveKey handles DELETE /keys.
func (h *KeyHandler) RemoveKey(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.pool.RemoveCredential(c.Request.Context(), req.Key); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListKeys handles GET /keys. Secrets are masked.
func (h *KeyHandler) ListKeys(c *gin.Context) {
	creds, err := h.pool.Credentials(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]domain.CredentialView, 0, len(creds))
	for _, cred := range creds {
		views = append(views, domain.NewCredentialView(cred))
	}
	c.JSON(http.StatusOK, gin.H{"keys": views})
}

// Calibrate handles GET /info/calibrate by re-probing every key.
func (h *KeyHandler) Calibrate(c *gin.Context) {
	report, err := h.pool.RefreshKeys(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// MaxBlogs handles GET /info/max-blogs/:tokens.
func (h *KeyHandler) MaxBlogs(c *gin.Context) {
	h.capacity(c, "max_blogs", keypool.CalculateMaxUnitsOfWork)
}

// DaysToExhaust handles GET /info/days-to-exhaust/:tokens.
func (h *KeyHandler) DaysToExhaust(c *gin.Context) {
	h.capacity(c, "days", keypool.DaysToExhaust)
}

func (h *KeyHandler) capacity(c *gin.Context, field string, calc func(quota, per int64) int64) {
	per, err := strconv.ParseInt(c.Param("tokens"), 10, 64)
	if err != nil || per <= 0 {
		badRequest(c, "tokens must be a positive integer")
		return
	}
	total, err := h.pool.TotalTokensRemaining(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		field:              calc(total, per),
		"tokens_remaining": total,
	})
}

// TokenUsageDaily handles GET /info/token-usage-daily.
func (h *KeyHandler) TokenUsageDaily(c *gin.Context) {
	total, err := h.pool.TotalTokensRemaining(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tokens_per_day":   keypool.TokenUsagePerDay(total),
		"tokens_remaining": total,
	})
}
