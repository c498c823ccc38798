// Package record defines the governed record model: Task and Workflow
// versions, their shared metadata, and the lifecycle vocabulary.
package record

import "time"

// EntityType distinguishes the two governed record kinds
type EntityType string

const (
	EntityTask     EntityType = "task"
	EntityWorkflow EntityType = "workflow"
)

// Meta holds the version-control and review metadata shared by Task and
// Workflow. RecordID is stable across versions; Version increases
// monotonically per RecordID.
type Meta struct {
	RecordID string `json:"record_id"`
	Version  int    `json:"version"`
	Status   Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`

	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ChangeNote string     `json:"change_note,omitempty"`

	NeedsReview     bool   `json:"needs_review"`
	NeedsReviewNote string `json:"needs_review_note,omitempty"`
}
