package activity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/activity"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroadcaster struct {
	mock.Mock
	sync.Mutex
	received []activity.JobSnapshot
}

func (m *mockBroadcaster) BroadcastJobUpdate(snapshot activity.JobSnapshot) error {
	m.Lock()
	m.received = append(m.received, snapshot)
	m.Unlock()

	return m.Called(snapshot).Error(0)
}

func (m *mockBroadcaster) snapshots() []activity.JobSnapshot {
	m.Lock()
	defer m.Unlock()
	return append([]activity.JobSnapshot(nil), m.received...)
}

// startService starts an activity service on a fresh event bus, returning
// the bus so the test can dispatch events to it.
func startService(t *testing.T, broadcaster activity.Broadcaster) (event.EventCoordinator, interface {
	Latest() (activity.JobSnapshot, bool)
	Job(uuid.UUID) (activity.JobSnapshot, bool)
}) {
	bus := event.New()
	service := activity.New(bus)
	service.RegisterBroadcaster(broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, service.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return bus, service
}

func Test_JobLifecycleIsBroadcast(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	broadcaster.On("BroadcastJobUpdate", mock.Anything).Return(nil)
	bus, service := startService(t, broadcaster)

	jobID := uuid.New()
	taskA, taskB := uuid.New(), uuid.New()
	bus.Dispatch(event.JOB_START, event.JobPayload{JobID: jobID, SourceFormat: "mp3", TargetFormat: "wav", Total: 2})

	snapshot, ok := service.Latest()
	require.True(t, ok)
	assert.Equal(t, jobID, snapshot.ID)
	assert.Equal(t, activity.JobRunning, snapshot.State)
	assert.Equal(t, 0.0, snapshot.Percent)

	bus.Dispatch(event.TASK_UPDATE, event.TaskPayload{JobID: jobID, TaskID: taskA, Source: "/in/a.mp3", Status: "RUNNING"})
	bus.Dispatch(event.TASK_UPDATE, event.TaskPayload{JobID: jobID, TaskID: taskB, Source: "/in/b.mp3", Status: "RUNNING"})

	snapshot, _ = service.Latest()
	require.Len(t, snapshot.Running, 2)
	assert.Equal(t, "/in/a.mp3", snapshot.Running[0].Source)

	bus.Dispatch(event.TASK_UPDATE, event.TaskPayload{JobID: jobID, TaskID: taskA, Source: "/in/a.mp3", Status: "FAILED", Diagnostic: "boom"})
	bus.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{JobID: jobID, TaskID: taskA, Completed: 1, Total: 2, Failed: 1})

	snapshot, _ = service.Latest()
	assert.Len(t, snapshot.Running, 1)
	require.Len(t, snapshot.Failures, 1)
	assert.Equal(t, "boom", snapshot.Failures[0].Diagnostic)
	assert.Equal(t, 50.0, snapshot.Percent)

	bus.Dispatch(event.TASK_UPDATE, event.TaskPayload{JobID: jobID, TaskID: taskB, Source: "/in/b.mp3", Status: "SUCCEEDED"})
	bus.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{JobID: jobID, TaskID: taskB, Completed: 2, Total: 2, Failed: 1, Succeeded: 1})
	bus.Dispatch(event.JOB_COMPLETE, event.JobPayload{JobID: jobID, Total: 2, Succeeded: 1, Failed: 1, Duration: time.Second})

	snapshot, _ = service.Latest()
	assert.Equal(t, activity.JobComplete, snapshot.State)
	assert.Equal(t, 2, snapshot.Completed)
	assert.Equal(t, 100.0, snapshot.Percent)
	assert.Empty(t, snapshot.Running)

	// Completion is broadcast immediately and cancels the pending debounced broadcast
	received := broadcaster.snapshots()
	last := received[len(received)-1]
	assert.Equal(t, jobID, last.ID)
	assert.Equal(t, activity.JobComplete, last.State)

	time.Sleep(activity.MAX_TIMER_DURATION + 100*time.Millisecond)
	assert.Len(t, broadcaster.snapshots(), len(received), "no broadcasts should follow job completion")
}

func Test_RapidProgressIsDebounced(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	broadcaster.On("BroadcastJobUpdate", mock.Anything).Return(nil)
	bus, _ := startService(t, broadcaster)

	jobID := uuid.New()
	bus.Dispatch(event.JOB_START, event.JobPayload{JobID: jobID, Total: 100})
	before := len(broadcaster.snapshots())

	for i := 1; i <= 100; i++ {
		bus.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{JobID: jobID, Completed: i, Total: 100, Succeeded: i})
	}

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		received := broadcaster.snapshots()
		if assert.Greater(c, len(received), before) {
			assert.Equal(c, 100, received[len(received)-1].Completed)
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Less(t, len(broadcaster.snapshots())-before, 10, "progress broadcasts should be coalesced")
}

func Test_StaleProgressIsIgnored(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	broadcaster.On("BroadcastJobUpdate", mock.Anything).Return(errors.New("no clients"))
	bus, service := startService(t, broadcaster)

	jobID := uuid.New()
	bus.Dispatch(event.JOB_START, event.JobPayload{JobID: jobID, Total: 3})
	bus.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{JobID: jobID, Completed: 2, Total: 3, Succeeded: 2})
	bus.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{JobID: jobID, Completed: 1, Total: 3, Succeeded: 1})

	snapshot, ok := service.Job(jobID)
	require.True(t, ok)
	assert.Equal(t, 2, snapshot.Completed)
	assert.Equal(t, 2, snapshot.Succeeded)
}

func Test_EmptyJobIsComplete(t *testing.T) {
	broadcaster := &mockBroadcaster{}
	broadcaster.On("BroadcastJobUpdate", mock.Anything).Return(nil)
	bus, service := startService(t, broadcaster)

	jobID := uuid.New()
	bus.Dispatch(event.JOB_START, event.JobPayload{JobID: jobID})
	bus.Dispatch(event.JOB_COMPLETE, event.JobPayload{JobID: jobID})

	snapshot, _ := service.Job(jobID)
	assert.Equal(t, activity.JobComplete, snapshot.State)
	assert.Equal(t, 100.0, snapshot.Percent)

	_, ok := service.Job(uuid.New())
	assert.False(t, ok)
}
