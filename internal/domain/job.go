package domain

import (
	"encoding/json"
	"fmt"
)

// JobKind tags the payload carried by a queued job.
type JobKind string

const (
	JobKindPlacement JobKind = "placement"
	JobKindContent   JobKind = "content"
)

// JobState is the queue-side lifecycle of a job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateFailed    JobState = "failed"
	JobStateCompleted JobState = "completed"
)

// JobPayload is implemented only by the payload types in this package,
// one per JobKind. Switch on the concrete type to dispatch.
type JobPayload interface {
	Kind() JobKind
	jobPayload()
}

// PlacementPayload asks a worker to match sites for every slot of one requirement.
// The requirement is carried in full so the job does not depend on re-reading it.
type PlacementPayload struct {
	ProjectID   string              `json:"project_id"`
	Requirement BacklinkRequirement `json:"requirement"`
}

// Kind returns JobKindPlacement.
func (PlacementPayload) Kind() JobKind { return JobKindPlacement }
func (PlacementPayload) jobPayload()   {}

// ContentPayload asks a worker to generate the blog for one placement assignment.
type ContentPayload struct {
	AssignmentID  string `json:"assignment_id"`
	ProjectID     string `json:"project_id"`
	RequirementID string `json:"requirement_id"`
	SiteID        string `json:"site_id"`
}

// Kind returns JobKindContent.
func (ContentPayload) Kind() JobKind { return JobKindContent }
func (ContentPayload) jobPayload()   {}

// DecodePayload turns a stored payload back into its typed variant.
func DecodePayload(kind JobKind, raw []byte) (JobPayload, error) {
	switch kind {
	case JobKindPlacement:
		var p PlacementPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode placement payload: %w", err)
		}
		return p, nil
	case JobKindContent:
		var p ContentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode content payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}
