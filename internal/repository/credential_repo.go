package repository

import (
	"context"
	"time"

	"github.com/timmy/linkweaver/internal/domain"
	"gorm.io/gorm"
)

// CredentialQuota carries the counters a provider reported for a credential.
// Nil fields are left unchanged.
type CredentialQuota struct {
	RequestsRemaining *int
	TokensRemaining   *int
	RequestsResetAt   *time.Time
	TokensResetAt     *time.Time
}

func (q CredentialQuota) columns() map[string]interface{} {
	cols := make(map[string]interface{}, 4)
	if q.RequestsRemaining != nil {
		cols["requests_remaining"] = *q.RequestsRemaining
	}
	if q.TokensRemaining != nil {
		cols["tokens_remaining"] = *q.TokensRemaining
	}
	if q.RequestsResetAt != nil {
		cols["requests_reset_at"] = *q.RequestsResetAt
	}
	if q.TokensResetAt != nil {
		cols["tokens_reset_at"] = *q.TokensResetAt
	}
	return cols
}

// CredentialRepository handles provider credential rows.
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new CredentialRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CredentialRepository: repository instance bound to db.
func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a new credential.
func (r *CredentialRepository) Create(ctx context.Context, c *domain.Credential) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// GetByID retrieves a credential by its ID.
func (r *CredentialRepository) GetByID(ctx context.Context, id uint) (*domain.Credential, error) {
	var c domain.Credential
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GetByKey retrieves a credential by its secret.
func (r *CredentialRepository) GetByKey(ctx context.Context, key string) (*domain.Credential, error) {
	var c domain.Credential
	if err := r.db.WithContext(ctx).First(&c, "secret = ?", key).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// List returns every credential in ascending ID order.
func (r *CredentialRepository) List(ctx context.Context) ([]domain.Credential, error) {
	var creds []domain.Credential
	err := r.db.WithContext(ctx).Order("id ASC").Find(&creds).Error
	return creds, err
}

// ListActive returns active credentials in ascending ID order, the rotation order.
func (r *CredentialRepository) ListActive(ctx context.Context) ([]domain.Credential, error) {
	var creds []domain.Credential
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&creds).Error
	return creds, err
}

// UpdateQuota overwrites the counters present in q.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: credential ID.
//   - q: counters and reset times to write.
// Returns:
//   - error: non-nil if the update fails.
func (r *CredentialRepository) UpdateQuota(ctx context.Context, id uint, q CredentialQuota) error {
	cols := q.columns()
	if len(cols) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Credential{}).Where("id = ?", id).Updates(cols).Error
}

// ReserveRequest takes one request off the credential's remaining count
// before a call goes out. The count is overwritten from the response headers afterwards.
func (r *CredentialRepository) ReserveRequest(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ?", id).
		Update("requests_remaining", gorm.Expr("requests_remaining - 1")).Error
}

// SetState activates or deactivates a credential with a diagnostic message.
func (r *CredentialRepository) SetState(ctx context.Context, id uint, active bool, message string) error {
	return r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"active":  active,
			"message": message,
		}).Error
}

// DeleteByKey removes the credential holding key and returns the removed row.
func (r *CredentialRepository) DeleteByKey(ctx context.Context, key string) (*domain.Credential, error) {
	c, err := r.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&domain.Credential{}, c.ID).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// SumActiveTokens adds up the tokens remaining across active credentials.
func (r *CredentialRepository) SumActiveTokens(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.Credential{}).
		Where("active = ?", true).
		Select("COALESCE(SUM(tokens_remaining), 0)").
		Scan(&total).Error
	return total, err
}
