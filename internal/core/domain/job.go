package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// Stage identifies one phase of the discovery pipeline.
type Stage string

const (
	StageSearch    Stage = "search"
	StagePrimary   Stage = "primary-analyze"
	StageSecondary Stage = "secondary-analyze"
)

// Stages lists all pipeline stages in execution order.
var Stages = []Stage{StageSearch, StagePrimary, StageSecondary}

// Job is one unit of pipeline work. Jobs are immutable once created;
// a stage transition is performed by enqueuing a new job, never by
// mutating an existing one.
type Job struct {
	ID         string          `json:"id"`
	Stage      Stage           `json:"stage"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// JobState is the lifecycle state reported by status queries.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// JobStatus is the externally visible view of a job, identical in
// durable and fallback modes.
type JobStatus struct {
	ID       string   `json:"id"`
	Stage    Stage    `json:"stage"`
	State    JobState `json:"state"`
	Result   string   `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"`
	Fallback bool     `json:"fallback,omitempty"`
}

// SearchPayload is the payload of a search-stage job.
type SearchPayload struct {
	TopicID  string `json:"topic_id"`
	MaxPages int    `json:"max_pages,omitempty"`
}

// AnalyzePayload is the payload of a primary- or secondary-analyze job.
type AnalyzePayload struct {
	TopicID   string `json:"topic_id"`
	AccountID string `json:"account_id"`
}

// QueueCounts reports per-stage queue depths.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
