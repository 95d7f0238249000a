package domain

import "time"

// CandidateSite is a partner website that can host a placement.
// A nil ProjectID marks a pool-wide site available to every project.
type CandidateSite struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ProjectID *string   `gorm:"type:text;index:idx_sites_project" json:"project_id,omitempty"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	Username  string    `gorm:"type:text" json:"username,omitempty"`
	Password  string    `gorm:"type:text" json:"-"`
	DR        int       `gorm:"not null;index:idx_sites_dr" json:"dr"`
	Industry  string    `gorm:"type:text;index:idx_sites_industry" json:"industry"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for CandidateSite.
func (CandidateSite) TableName() string {
	return "candidate_sites"
}
