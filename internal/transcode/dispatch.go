package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hbomb79/batchconv/internal/event"
	"github.com/hbomb79/batchconv/pkg/logger"
	"github.com/hbomb79/batchconv/pkg/worker"
)

var errAborted = errors.New("conversion aborted")

// runWorkers starts one worker for each unit of allowed concurrency (capped
// at the number of tasks) and blocks until every task is terminal.
func (job *Job) runWorkers(ctx context.Context) {
	pool := worker.NewWorkerPool()
	for i := 0; i < min(job.config.Concurrency, len(job.tasks)); i++ {
		label := fmt.Sprintf("job-%s-worker-%d", job.id.String()[:8], i)
		pool.PushWorker(worker.NewWorker(label, job.performNextTask(ctx)))
	}

	if err := pool.Start(); err != nil {
		log.Emit(logger.FATAL, "Failed to start worker pool: %v\n", err)
		return
	}

	pool.Wait()
}

// performNextTask returns the worker task used by the jobs worker pool. Each
// invocation claims the next PENDING task and either runs it, or skips
// it if the job has been cancelled.
func (job *Job) performNextTask(ctx context.Context) worker.WorkerTask {
	return func(w worker.Worker) (bool, error) {
		task, started, err := job.claimPendingTask(ctx)
		if task == nil {
			return false, err
		}

		if !started {
			job.publishTask(task)
			if err := job.progress.RecordSkip(task); err != nil {
				return true, err
			}

			return true, nil
		}

		job.publishTask(task)
		log.Emit(logger.DEBUG, "[%s] Converting %s -> %s\n", w.Label(), task.Source(), task.Destination())
		convErr := job.convert(ctx, task)

		status, diagnostic := SUCCEEDED, ""
		if convErr != nil {
			status, diagnostic = FAILED, convErr.Error()
			log.Emit(logger.ERROR, "Failed to convert %s: %s\n", task.Source(), diagnostic)
		} else {
			log.Emit(logger.SUCCESS, "Converted %s\n", task.Destination())
		}

		if err := task.transition(status, diagnostic); err != nil {
			return true, err
		}

		job.publishTask(task)
		return true, job.progress.RecordResult(task, convErr == nil)
	}
}

// claimPendingTask finds the next PENDING task and moves it to RUNNING, or to
// SKIPPED if cancellation has been requested. A nil task is returned when no
// PENDING tasks remain.
func (job *Job) claimPendingTask(ctx context.Context) (*Task, bool, error) {
	job.Lock()
	defer job.Unlock()

	if job.nextTask >= len(job.tasks) {
		return nil, false, nil
	}
	if ctx.Err() != nil {
		job.canceller.RequestCancel()
	}

	task := job.tasks[job.nextTask]
	job.nextTask++

	started, err := job.canceller.unlessCancelled(func() error {
		return task.transition(RUNNING, "")
	})
	if err != nil {
		return nil, false, err
	}
	if !started {
		return task, false, task.transition(SKIPPED, "cancelled before start")
	}

	return task, true, nil
}

// convert prepares the destination directory and invokes the converter. A
// panicking converter is reported as a failure of this task only.
func (job *Job) convert(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converter panicked: %v", r)
		}
	}()

	if err := job.ensureDirectory(filepath.Dir(task.Destination())); err != nil {
		return err
	}

	err = job.converter.Convert(ctx, Request{
		SourcePath:      task.Source(),
		DestinationPath: task.Destination(),
		SourceFormat:    job.config.SourceFormat,
		TargetFormat:    job.config.TargetFormat,
	})
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", errAborted, err)
	}

	return err
}

// ensureDirectory creates the directory provided if this job has
// not already done so. Concurrent creation of the same directory is safe.
func (job *Job) ensureDirectory(dir string) error {
	if _, ok := job.createdDirs.Load(dir); ok {
		return nil
	}

	if err := os.MkdirAll(dir, os.ModeDir|0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	job.createdDirs.Store(dir, struct{}{})
	return nil
}

func (job *Job) publishTask(task *Task) {
	snapshot := task.Snapshot()
	job.dispatch(event.TASK_UPDATE, event.TaskPayload{
		JobID:       job.id,
		TaskID:      snapshot.ID,
		Source:      snapshot.Source,
		Destination: snapshot.Destination,
		Status:      snapshot.Status.String(),
		Diagnostic:  snapshot.Diagnostic,
	})
}
