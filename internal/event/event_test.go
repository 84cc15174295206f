package event_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Dispatch_DeliversToChannelsAndFunctions(t *testing.T) {
	t.Parallel()

	bus := event.New()
	ch := make(event.HandlerChannel, 2)
	bus.RegisterHandlerChannel(ch, event.JOB_START, event.JOB_COMPLETE)

	var received []event.Event
	bus.RegisterHandlerFunction(event.JOB_START, func(ev event.Event, _ event.Payload) {
		received = append(received, ev)
	})

	async := make(chan event.Payload, 1)
	bus.RegisterAsyncHandlerFunction(event.JOB_COMPLETE, func(_ event.Event, p event.Payload) {
		async <- p
	})

	id := uuid.New()
	bus.Dispatch(event.JOB_START, event.JobPayload{JobID: id, Total: 3})
	bus.Dispatch(event.JOB_COMPLETE, event.JobPayload{JobID: id, Total: 3, Succeeded: 3})

	require.Len(t, ch, 2)
	first := <-ch
	assert.Equal(t, event.JOB_START, first.Event)
	assert.Equal(t, id, first.Payload.(event.JobPayload).JobID)
	assert.Equal(t, event.JOB_COMPLETE, (<-ch).Event)
	assert.Equal(t, []event.Event{event.JOB_START}, received)

	select {
	case p := <-async:
		assert.Equal(t, 3, p.(event.JobPayload).Succeeded)
	case <-time.After(time.Second):
		t.Fatal("async handler was not invoked")
	}
}

func Test_Dispatch_DropsInvalidPayloads(t *testing.T) {
	t.Parallel()

	bus := event.New()
	ch := make(event.HandlerChannel, 4)
	bus.RegisterHandlerChannel(ch, event.JOB_PROGRESS, event.TASK_UPDATE, event.JOB_START)

	bus.Dispatch(event.JOB_PROGRESS, event.TaskPayload{})
	bus.Dispatch(event.TASK_UPDATE, nil)
	bus.Dispatch(event.JOB_START, uuid.New())
	bus.Dispatch(event.Event("unknown"), event.JobPayload{})
	assert.Len(t, ch, 0, "no invalid payload should reach subscribers")

	bus.Dispatch(event.TASK_UPDATE, event.TaskPayload{Status: "RUNNING"})
	assert.Len(t, ch, 1)
}

func Test_ProgressPayload_Percent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100.0, event.ProgressPayload{}.Percent(), "empty job is fully complete")
	assert.Equal(t, 25.0, event.ProgressPayload{Completed: 1, Total: 4}.Percent())
	assert.Equal(t, 100.0, event.ProgressPayload{Completed: 4, Total: 4}.Percent())
}
