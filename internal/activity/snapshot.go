package activity

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/hbomb79/batchconv/internal/transcode"
)

type JobState string

const (
	JobRunning  JobState = "RUNNING"
	JobComplete JobState = "COMPLETE"
)

// JobSnapshot is the latest known state of a conversion job, as
// reported to monitor clients.
type JobSnapshot struct {
	ID           uuid.UUID           `json:"id"`
	SourceFormat string              `json:"source_format"`
	TargetFormat string              `json:"target_format"`
	State        JobState            `json:"state"`
	Cancelled    bool                `json:"cancelled"`
	Total        int                 `json:"total"`
	Completed    int                 `json:"completed"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	Skipped      int                 `json:"skipped"`
	Percent      float64             `json:"percent"`
	StartedAt    time.Time           `json:"started_at"`
	Duration     time.Duration       `json:"duration"`
	Running      []event.TaskPayload `json:"running"`
	Failures     []event.TaskPayload `json:"failures"`
}

// jobState accumulates the events for a single job.
type jobState struct {
	snapshot JobSnapshot
	running  map[uuid.UUID]event.TaskPayload
	failures []event.TaskPayload
}

func newJobState(payload event.JobPayload, startedAt time.Time) *jobState {
	return &jobState{
		snapshot: JobSnapshot{
			ID:           payload.JobID,
			SourceFormat: payload.SourceFormat,
			TargetFormat: payload.TargetFormat,
			State:        JobRunning,
			Total:        payload.Total,
			Percent:      percent(0, payload.Total),
			StartedAt:    startedAt,
		},
		running: make(map[uuid.UUID]event.TaskPayload),
	}
}

func (state *jobState) applyTask(payload event.TaskPayload) {
	switch payload.Status {
	case transcode.RUNNING.String():
		state.running[payload.TaskID] = payload
	case transcode.FAILED.String():
		delete(state.running, payload.TaskID)
		state.failures = append(state.failures, payload)
	default:
		delete(state.running, payload.TaskID)
	}
}

func (state *jobState) applyProgress(payload event.ProgressPayload) {
	// Progress events may be delivered out of order relative to one another,
	// but the counts they carry only ever grow.
	if payload.Completed < state.snapshot.Completed {
		return
	}

	state.snapshot.Completed = payload.Completed
	state.snapshot.Succeeded = payload.Succeeded
	state.snapshot.Failed = payload.Failed
	state.snapshot.Skipped = payload.Skipped
	state.snapshot.Percent = payload.Percent()
}

func (state *jobState) applyComplete(payload event.JobPayload) {
	state.snapshot.State = JobComplete
	state.snapshot.Cancelled = payload.Cancelled
	state.snapshot.Succeeded = payload.Succeeded
	state.snapshot.Failed = payload.Failed
	state.snapshot.Skipped = payload.Skipped
	state.snapshot.Completed = payload.Succeeded + payload.Failed + payload.Skipped
	state.snapshot.Percent = percent(state.snapshot.Completed, payload.Total)
	state.snapshot.Duration = payload.Duration
	clear(state.running)
}

// Snapshot returns a copy of the jobs state which is safe to hand to
// other goroutines.
func (state *jobState) Snapshot() JobSnapshot {
	snapshot := state.snapshot

	snapshot.Running = make([]event.TaskPayload, 0, len(state.running))
	for _, task := range state.running {
		snapshot.Running = append(snapshot.Running, task)
	}
	sort.Slice(snapshot.Running, func(i, j int) bool { return snapshot.Running[i].Source < snapshot.Running[j].Source })

	snapshot.Failures = append(make([]event.TaskPayload, 0, len(state.failures)), state.failures...)
	return snapshot
}

func percent(completed int, total int) float64 {
	if total == 0 {
		return 100
	}

	return float64(completed) / float64(total) * 100
}
