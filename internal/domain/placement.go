package domain

import "time"

// PlacementAssignment pairs one required slot with a concrete site.
// (FanoutID, Band, Slot) is unique so a retried fan-out reuses its rows.
type PlacementAssignment struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	FanoutID      string    `gorm:"type:text;not null;uniqueIndex:idx_placements_slot" json:"fanout_id"`
	Band          DRBand    `gorm:"type:text;not null;uniqueIndex:idx_placements_slot" json:"band"`
	Slot          int       `gorm:"not null;uniqueIndex:idx_placements_slot" json:"slot"`
	RequirementID string    `gorm:"type:text;not null;index:idx_placements_requirement" json:"requirement_id"`
	ProjectID     string    `gorm:"type:text;not null;index:idx_placements_project" json:"project_id"`
	SiteID        string    `gorm:"type:text;not null" json:"site_id"`
	BlogID        *string   `gorm:"type:text" json:"blog_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for PlacementAssignment.
func (PlacementAssignment) TableName() string {
	return "placement_assignments"
}

// GeneratedBlog is the content produced for one placement.
type GeneratedBlog struct {
	ID              string    `gorm:"type:text;primaryKey" json:"id"`
	PlacementID     string    `gorm:"type:text;not null;uniqueIndex:idx_blogs_placement" json:"placement_id"`
	RequirementID   string    `gorm:"type:text;not null" json:"requirement_id"`
	ProjectID       string    `gorm:"type:text;not null;index:idx_blogs_project" json:"project_id"`
	SiteID          string    `gorm:"type:text;not null" json:"site_id"`
	Title           string    `gorm:"type:text;not null" json:"title"`
	Body            string    `gorm:"type:text;not null" json:"body"`
	MetaTitle       string    `gorm:"type:text" json:"meta_title,omitempty"`
	MetaDescription string    `gorm:"type:text" json:"meta_description,omitempty"`
	ArchiveKey      string    `gorm:"type:text" json:"archive_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for GeneratedBlog.
func (GeneratedBlog) TableName() string {
	return "generated_blogs"
}
