package transcode_test

import (
	"sync"
	"testing"

	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/stretchr/testify/assert"
)

func Test_Canceller_IsMonotonicAndIdempotent(t *testing.T) {
	t.Parallel()

	c := transcode.NewCanceller()
	assert.False(t, c.IsCancelled())
	select {
	case <-c.Done():
		t.Fatal("done channel closed before cancellation")
	default:
	}

	wg := sync.WaitGroup{}
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RequestCancel()
		}()
	}
	wg.Wait()

	assert.True(t, c.IsCancelled())
	<-c.Done()

	c.RequestCancel()
	assert.True(t, c.IsCancelled())
}

func Test_Task_StatusTransitions(t *testing.T) {
	t.Parallel()

	task := transcode.NewTask("/in/a.mp3", "/in", "/out/WAVs/a.wav")
	snap := task.Snapshot()
	assert.Equal(t, transcode.PENDING, snap.Status)
	assert.Equal(t, task.ID(), snap.ID)
	assert.Equal(t, "/out/WAVs/a.wav", task.Destination())
	assert.False(t, transcode.PENDING.Terminal())
	assert.False(t, transcode.RUNNING.Terminal())
	assert.True(t, transcode.SKIPPED.Terminal())
	assert.Equal(t, "FAILED", transcode.FAILED.String())
	assert.Equal(t, "UNKNOWN[42]", transcode.TaskStatus(42).String())
}
