package transcode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/event"
)

var ErrAlreadyRecorded = errors.New("task result already recorded")

// Counts is a point-in-time copy of a jobs progress counters.
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Completed returns the number of tasks which have reached a terminal state.
func (c Counts) Completed() int {
	return c.Succeeded + c.Failed + c.Skipped
}

// Percent returns the completion percentage. A job with no tasks
// is considered fully complete.
func (c Counts) Percent() float64 {
	if c.Total == 0 {
		return 100
	}

	return float64(c.Completed()) / float64(c.Total) * 100
}

// Progress aggregates the outcome of every task in a job. Each task
// may be recorded exactly once, and every record dispatches a
// JOB_PROGRESS event. Events are dispatched while the aggregator is
// locked, so subscribers observe counts which never decrease.
type Progress struct {
	sync.Mutex
	jobID      uuid.UUID
	counts     Counts
	recorded   map[uuid.UUID]struct{}
	dispatcher event.EventDispatcher
}

func NewProgress(jobID uuid.UUID, total int, dispatcher event.EventDispatcher) *Progress {
	return &Progress{
		jobID:      jobID,
		counts:     Counts{Total: total},
		recorded:   make(map[uuid.UUID]struct{}, total),
		dispatcher: dispatcher,
	}
}

// RecordResult records the outcome of a task which was run.
func (progress *Progress) RecordResult(task *Task, success bool) error {
	if success {
		return progress.record(task, SUCCEEDED)
	}

	return progress.record(task, FAILED)
}

// RecordSkip records a task which was never started.
func (progress *Progress) RecordSkip(task *Task) error {
	return progress.record(task, SKIPPED)
}

func (progress *Progress) record(task *Task, status TaskStatus) error {
	progress.Lock()
	defer progress.Unlock()

	if _, ok := progress.recorded[task.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, task.ID())
	}
	if progress.counts.Completed() >= progress.counts.Total {
		return fmt.Errorf("cannot record task %s: all %d tasks already recorded", task.ID(), progress.counts.Total)
	}

	progress.recorded[task.ID()] = struct{}{}
	switch status {
	case SUCCEEDED:
		progress.counts.Succeeded++
	case FAILED:
		progress.counts.Failed++
	default:
		progress.counts.Skipped++
	}

	if progress.dispatcher != nil {
		progress.dispatcher.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{
			JobID:     progress.jobID,
			TaskID:    task.ID(),
			Source:    task.Source(),
			Status:    status.String(),
			Completed: progress.counts.Completed(),
			Total:     progress.counts.Total,
			Succeeded: progress.counts.Succeeded,
			Failed:    progress.counts.Failed,
			Skipped:   progress.counts.Skipped,
		})
	}

	return nil
}

func (progress *Progress) Counts() Counts {
	progress.Lock()
	defer progress.Unlock()
	return progress.counts
}

func (progress *Progress) Percent() float64 {
	return progress.Counts().Percent()
}
