// internal/model/broadcast_job.go
package model

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobScheduled JobStatus = "scheduled"
	JobSending   JobStatus = "sending"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further mutation of the job is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobScheduled, JobSending, JobCompleted, JobFailed:
		return true
	}
	return false
}

// TerminalStatus is failed only when not a single store was sent to.
func TerminalStatus(sent, failed int) JobStatus {
	if sent == 0 {
		return JobFailed
	}
	return JobCompleted
}

type JobTrigger string

const (
	TriggerImmediate JobTrigger = "immediate"
	TriggerScheduled JobTrigger = "scheduled"
)

// BroadcastJob is the ledger row for one broadcast request.
type BroadcastJob struct {
	ID                 string            `db:"id" json:"id"`
	TemplateID         *string           `db:"template_id" json:"template_id"`
	Status             JobStatus         `db:"status" json:"status"`
	Trigger            JobTrigger        `db:"trigger" json:"trigger"`
	TargetStoreIDs     []string          `db:"target_store_ids" json:"target_store_ids"`
	MediaSelections    map[string]string `db:"media_selections" json:"media_selections"`
	SentCount          int               `db:"sent_count" json:"sent_count"`
	FailedCount        int               `db:"failed_count" json:"failed_count"`
	ErrorDetails       map[string]string `db:"error_details" json:"error_details"`
	ScheduledAt        *time.Time        `db:"scheduled_at" json:"scheduled_at"`
	SchedulerMessageID *string           `db:"scheduler_message_id" json:"scheduler_message_id"`
	StartedAt          *time.Time        `db:"started_at" json:"started_at"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at"`

	Template   *TemplateRef `json:"template,omitempty"`
	Deliveries []Delivery   `json:"deliveries,omitempty"`
}

// JobOutcome is the terminal update written once a fan-out pass finishes.
type JobOutcome struct {
	Status       JobStatus
	SentCount    int
	FailedCount  int
	ErrorDetails map[string]string
	CompletedAt  time.Time
}
