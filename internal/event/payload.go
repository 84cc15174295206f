package event

import (
	"time"

	"github.com/google/uuid"
)

type (
	// JobPayload accompanies JOB_START and JOB_COMPLETE. For JOB_START
	// only the identifying fields and Total are populated.
	JobPayload struct {
		JobID        uuid.UUID     `json:"job_id"`
		SourceFormat string        `json:"source_format"`
		TargetFormat string        `json:"target_format"`
		Total        int           `json:"total"`
		Succeeded    int           `json:"succeeded"`
		Failed       int           `json:"failed"`
		Skipped      int           `json:"skipped"`
		Cancelled    bool          `json:"cancelled"`
		Duration     time.Duration `json:"duration"`
	}

	// TaskPayload describes a single task changing state.
	TaskPayload struct {
		JobID       uuid.UUID `json:"job_id"`
		TaskID      uuid.UUID `json:"task_id"`
		Source      string    `json:"source"`
		Destination string    `json:"destination"`
		Status      string    `json:"status"`
		Diagnostic  string    `json:"diagnostic,omitempty"`
	}

	// ProgressPayload is dispatched every time a task reaches a terminal
	// state. Completed is the number of tasks which are terminal, and is
	// never observed to decrease for a given job.
	ProgressPayload struct {
		JobID     uuid.UUID `json:"job_id"`
		TaskID    uuid.UUID `json:"task_id"`
		Source    string    `json:"source"`
		Status    string    `json:"status"`
		Completed int       `json:"completed"`
		Total     int       `json:"total"`
		Succeeded int       `json:"succeeded"`
		Failed    int       `json:"failed"`
		Skipped   int       `json:"skipped"`
	}
)

// Percent returns the completion percentage for this progress update.
// A job with no tasks is reported as 100% complete.
func (p ProgressPayload) Percent() float64 {
	if p.Total == 0 {
		return 100
	}

	return float64(p.Completed) / float64(p.Total) * 100
}
