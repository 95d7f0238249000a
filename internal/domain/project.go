package domain

import "time"

// ProjectStatus represents the lifecycle of a project.
type ProjectStatus string

const (
	ProjectStatusBuilding  ProjectStatus = "building"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusFailed    ProjectStatus = "failed"
)

// Project is one uploaded link-building project.
// TokenBudget bounds the length of every blog generated for it.
type Project struct {
	ID          string        `gorm:"type:text;primaryKey" json:"id"`
	Name        string        `gorm:"type:text;not null" json:"name"`
	TokenBudget int           `gorm:"not null" json:"token_budget"`
	Status      ProjectStatus `gorm:"type:text;index:idx_projects_status;default:building" json:"status"`
	Message     string        `gorm:"type:text" json:"message"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string {
	return "projects"
}

// ProjectProgress is a project together with its fan-out counters.
type ProjectProgress struct {
	Project
	Requirements int64 `json:"requirements"`
	Assignments  int64 `json:"assignments"`
	Blogs        int64 `json:"blogs"`
}
