package domain

import "time"

// Credential is one provider API key with the quota the provider last reported for it.
type Credential struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key               string    `gorm:"column:secret;type:text;not null;uniqueIndex:idx_credentials_secret" json:"-"`
	RequestsRemaining int       `gorm:"not null;default:0" json:"requests_remaining"`
	TokensRemaining   int       `gorm:"not null;default:0" json:"tokens_remaining"`
	RequestsResetAt   time.Time `json:"requests_reset_at"`
	TokensResetAt     time.Time `json:"tokens_reset_at"`
	Active            bool      `gorm:"not null;default:false;index:idx_credentials_active" json:"active"`
	Message           string    `gorm:"type:text" json:"message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Credential.
func (Credential) TableName() string {
	return "credentials"
}

// Eligible reports whether the credential may serve a request at now.
// A counter at zero counts as replenished once its reset time has passed.
func (c Credential) Eligible(now time.Time) bool {
	if !c.Active {
		return false
	}
	requestsOK := c.RequestsRemaining > 0 || !now.Before(c.RequestsResetAt)
	tokensOK := c.TokensRemaining > 0 || !now.Before(c.TokensResetAt)
	return requestsOK && tokensOK
}

// AvailableAt returns when the credential can next serve a request,
// which is now if it is eligible already.
func (c Credential) AvailableAt(now time.Time) time.Time {
	if c.Eligible(now) {
		return now
	}
	at := now
	if c.RequestsRemaining <= 0 && c.RequestsResetAt.After(at) {
		at = c.RequestsResetAt
	}
	if c.TokensRemaining <= 0 && c.TokensResetAt.After(at) {
		at = c.TokensResetAt
	}
	return at
}

// MaskedKey returns the key with everything but its last four characters hidden.
func (c Credential) MaskedKey() string {
	return MaskKey(c.Key)
}

// MaskKey hides all but the last four characters of a secret.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// CredentialView is the listing shape of a credential; it never carries the secret.
type CredentialView struct {
	Credential
	MaskedKey string `json:"key"`
}

// NewCredentialView wraps c for display.
func NewCredentialView(c Credential) CredentialView {
	return CredentialView{Credential: c, MaskedKey: c.MaskedKey()}
}
