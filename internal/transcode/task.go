package transcode

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type TaskStatus int

const (
	PENDING TaskStatus = iota
	RUNNING
	SUCCEEDED
	FAILED
	SKIPPED
)

func (s TaskStatus) String() string {
	switch s {
	case PENDING:
		return "PENDING"
	case RUNNING:
		return "RUNNING"
	case SUCCEEDED:
		return "SUCCEEDED"
	case FAILED:
		return "FAILED"
	case SKIPPED:
		return "SKIPPED"
	}

	return fmt.Sprintf("UNKNOWN[%d]", int(s))
}

// Terminal returns true if a task in this state will never change again.
func (s TaskStatus) Terminal() bool {
	return s == SUCCEEDED || s == FAILED || s == SKIPPED
}

// Task is a single file conversion belonging to a Job. A task is created
// PENDING and moves to RUNNING and then SUCCEEDED or FAILED, or directly
// to SKIPPED if the job was cancelled before the task started.
type Task struct {
	sync.RWMutex
	id          uuid.UUID
	source      string
	root        string
	destination string
	status      TaskStatus
	diagnostic  string
}

// TaskSnapshot is a point-in-time copy of a Task.
type TaskSnapshot struct {
	ID          uuid.UUID  `json:"id"`
	Source      string     `json:"source"`
	Root        string     `json:"root"`
	Destination string     `json:"destination"`
	Status      TaskStatus `json:"status"`
	Diagnostic  string     `json:"diagnostic,omitempty"`
}

func NewTask(source string, root string, destination string) *Task {
	return &Task{
		id:          uuid.New(),
		source:      source,
		root:        root,
		destination: destination,
		status:      PENDING,
	}
}

func (task *Task) ID() uuid.UUID       { return task.id }
func (task *Task) Source() string      { return task.source }
func (task *Task) Root() string        { return task.root }
func (task *Task) Destination() string { return task.destination }

func (task *Task) Status() TaskStatus {
	task.RLock()
	defer task.RUnlock()
	return task.status
}

func (task *Task) Diagnostic() string {
	task.RLock()
	defer task.RUnlock()
	return task.diagnostic
}

func (task *Task) Snapshot() TaskSnapshot {
	task.RLock()
	defer task.RUnlock()
	return TaskSnapshot{
		ID:          task.id,
		Source:      task.source,
		Root:        task.root,
		Destination: task.destination,
		Status:      task.status,
		Diagnostic:  task.diagnostic,
	}
}

// transition moves the task to the status provided, returning an
// error if the move is not permitted from the tasks current status.
func (task *Task) transition(to TaskStatus, diagnostic string) error {
	task.Lock()
	defer task.Unlock()

	allowed := false
	switch task.status {
	case PENDING:
		allowed = to == RUNNING || to == SKIPPED
	case RUNNING:
		allowed = to == SUCCEEDED || to == FAILED
	}

	if !allowed {
		return fmt.Errorf("illegal task transition %s -> %s for task %s", task.status, to, task.id)
	}

	task.status = to
	task.diagnostic = diagnostic
	return nil
}

func (task *Task) String() string {
	return fmt.Sprintf("Task{id=%s source=%s status=%s}", task.id, task.source, task.Status())
}
