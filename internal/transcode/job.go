package transcode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/hbomb79/batchconv/internal/scan"
	"github.com/hbomb79/batchconv/pkg/logger"
	gosync "github.com/hbomb79/batchconv/pkg/sync"
)

var (
	log = logger.Get("Job")

	ErrInvalidJob     = errors.New("invalid job configuration")
	ErrAlreadyStarted = errors.New("job has already been started")
)

type (
	// JobConfig is the configuration of a single conversion job. It
	// is copied when the job is created and never changes afterwards.
	JobConfig struct {
		InputDirs    []string
		OutputDir    string
		SourceFormat string
		TargetFormat string

		// Concurrency is the maximum number of conversions allowed to run
		// at once. Zero selects DefaultConcurrency.
		Concurrency int
	}

	// JobOption customises a Job at construction.
	JobOption func(*Job)

	// Job enumerates the files to convert, dispatches each one to the
	// Converter using a bounded pool of workers and aggregates the outcome.
	// A Job can be run exactly once.
	Job struct {
		sync.Mutex
		id        uuid.UUID
		config    JobConfig
		converter Converter
		eventBus  event.EventDispatcher
		canceller *Canceller
		filter    func(scan.Match) bool

		started     atomic.Bool
		tasks       []*Task
		nextTask    int
		progress    *Progress
		createdDirs gosync.TypedSyncMap[string, struct{}]
	}

	// Result is the final report of a job.
	Result struct {
		JobID     uuid.UUID
		Succeeded int
		Failed    int
		Skipped   int
		Total     int
		Cancelled bool
		Warnings  []scan.Warning
		Tasks     []TaskSnapshot
		Duration  time.Duration
	}
)

// DefaultConcurrency is the number of logical CPUs, and never less than one.
func DefaultConcurrency() int {
	return max(runtime.NumCPU(), 1)
}

// Validate checks that the configuration describes a runnable job.
func (config JobConfig) Validate() error {
	switch {
	case len(config.InputDirs) == 0:
		return fmt.Errorf("%w: at least one input directory is required", ErrInvalidJob)
	case config.OutputDir == "":
		return fmt.Errorf("%w: output directory is required", ErrInvalidJob)
	case scan.NormalizeFormat(config.SourceFormat) == "":
		return fmt.Errorf("%w: source format is required", ErrInvalidJob)
	case scan.NormalizeFormat(config.TargetFormat) == "":
		return fmt.Errorf("%w: target format is required", ErrInvalidJob)
	case config.Concurrency < 0:
		return fmt.Errorf("%w: concurrency must not be negative (got %d)", ErrInvalidJob, config.Concurrency)
	}

	return nil
}

// EffectiveConcurrency returns the configured concurrency, or the default
// if none was configured.
func (config JobConfig) EffectiveConcurrency() int {
	if config.Concurrency <= 0 {
		return DefaultConcurrency()
	}

	return config.Concurrency
}

// WithSourceFilter restricts the job to the scanned files for which
// the filter returns true.
func WithSourceFilter(filter func(scan.Match) bool) JobOption {
	return func(job *Job) { job.filter = filter }
}

// NewJob validates the configuration provided and constructs a new Job.
// The eventBus may be nil if no subscriber is interested in the jobs events.
func NewJob(config JobConfig, converter Converter, eventBus event.EventDispatcher, opts ...JobOption) (*Job, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if converter == nil {
		return nil, fmt.Errorf("%w: converter is required", ErrInvalidJob)
	}

	config.InputDirs = append([]string(nil), config.InputDirs...)
	config.SourceFormat = scan.NormalizeFormat(config.SourceFormat)
	config.TargetFormat = scan.NormalizeFormat(config.TargetFormat)
	config.Concurrency = config.EffectiveConcurrency()

	job := &Job{
		id:        uuid.New(),
		config:    config,
		converter: converter,
		eventBus:  eventBus,
		canceller: NewCanceller(),
	}
	for _, opt := range opts {
		opt(job)
	}

	return job, nil
}

func (job *Job) ID() uuid.UUID { return job.id }

func (job *Job) Config() JobConfig { return job.config }

func (job *Job) Canceller() *Canceller { return job.canceller }

// Cancel requests cooperative cancellation of the job. Conversions already
// running are left to finish, every other task is skipped.
func (job *Job) Cancel() {
	log.Emit(logger.STOP, "Cancellation requested for job %s, finishing active conversions\n", job.id)
	job.canceller.RequestCancel()
}

// Run executes the job, blocking until every task has reached a terminal state.
//
// ErrConverterUnavailable is returned, before any file is scanned, if the converter
// cannot be executed. Cancelling ctx is a hard abort: no further tasks start and the
// context given to running conversions is cancelled.
func (job *Job) Run(ctx context.Context) (*Result, error) {
	if !job.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := job.converter.Check(ctx); err != nil {
		if errors.Is(err, ErrConverterUnavailable) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", ErrConverterUnavailable, err)
	}

	startedAt := time.Now()
	scanned := scan.New(job.config.SourceFormat).Scan(job.config.InputDirs...)
	job.buildTasks(scanned.Matches)

	job.Lock()
	total := len(job.tasks)
	job.progress = NewProgress(job.id, total, job.eventBus)
	job.Unlock()

	job.dispatch(event.JOB_START, event.JobPayload{
		JobID:        job.id,
		SourceFormat: job.config.SourceFormat,
		TargetFormat: job.config.TargetFormat,
		Total:        total,
	})

	if total == 0 {
		log.Emit(logger.INFO, "No %s files found\n", job.config.SourceFormat)
	} else {
		log.Emit(logger.NEW, "Converting %d %s files to %s using %d workers\n", total, job.config.SourceFormat, job.config.TargetFormat, min(job.config.EffectiveConcurrency(), total))

		stop := context.AfterFunc(ctx, job.canceller.RequestCancel)
		job.runWorkers(ctx)
		stop()
	}

	counts := job.progress.Counts()
	result := &Result{
		JobID:     job.id,
		Succeeded: counts.Succeeded,
		Failed:    counts.Failed,
		Skipped:   counts.Skipped,
		Total:     counts.Total,
		Cancelled: job.canceller.IsCancelled(),
		Warnings:  scanned.Warnings,
		Tasks:     job.Tasks(),
		Duration:  time.Since(startedAt),
	}

	job.dispatch(event.JOB_COMPLETE, event.JobPayload{
		JobID:        job.id,
		SourceFormat: job.config.SourceFormat,
		TargetFormat: job.config.TargetFormat,
		Total:        result.Total,
		Succeeded:    result.Succeeded,
		Failed:       result.Failed,
		Skipped:      result.Skipped,
		Cancelled:    result.Cancelled,
		Duration:     result.Duration,
	})
	log.Emit(logger.SUCCESS, "Job %s complete: %d/%d converted (%d failed, %d skipped)\n", job.id, result.Succeeded, result.Total, result.Failed, result.Skipped)

	return result, nil
}

// Tasks returns a snapshot of every task in the job, in dispatch order.
func (job *Job) Tasks() []TaskSnapshot {
	job.Lock()
	tasks := job.tasks
	job.Unlock()

	out := make([]TaskSnapshot, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Snapshot())
	}

	return out
}

// Counts returns the current progress of the job. Before the job has
// enumerated its tasks the zero value is returned.
func (job *Job) Counts() Counts {
	job.Lock()
	progress := job.progress
	job.Unlock()

	if progress == nil {
		return Counts{}
	}

	return progress.Counts()
}

func (job *Job) buildTasks(matches []scan.Match) {
	job.Lock()
	defer job.Unlock()

	job.tasks = make([]*Task, 0, len(matches))
	destinations := make(map[string]string, len(matches))
	for _, match := range matches {
		if job.filter != nil && !job.filter(match) {
			continue
		}

		dest, err := OutputPath(match.Path, match.Root, job.config.OutputDir, job.config.TargetFormat)
		if err != nil {
			log.Emit(logger.WARNING, "Ignoring %s: %v\n", match.Path, err)
			continue
		}

		if other, ok := destinations[dest]; ok {
			log.Emit(logger.DEBUG, "%s and %s both convert to %s, the later conversion will overwrite the earlier\n", other, match.Path, dest)
		}
		destinations[dest] = match.Path

		job.tasks = append(job.tasks, NewTask(match.Path, match.Root, dest))
	}
}

func (job *Job) dispatch(ev event.Event, payload event.Payload) {
	if job.eventBus != nil {
		job.eventBus.Dispatch(ev, payload)
	}
}

// Unsuccessful returns true if the job had work to do, and none of it
// succeeded.
func (result *Result) Unsuccessful() bool {
	return result.Total > 0 && result.Succeeded == 0
}

// AttemptedSources returns the source path of every task which was run,
// whether it succeeded or failed. Skipped tasks are excluded.
func (result *Result) AttemptedSources() []string {
	sources := make([]string, 0, len(result.Tasks))
	for _, task := range result.Tasks {
		if task.Status == SUCCEEDED || task.Status == FAILED {
			sources = append(sources, filepath.Clean(task.Source))
		}
	}

	return sources
}

// Counts returns the final counters of the job.
func (result *Result) Counts() Counts {
	return Counts{Total: result.Total, Succeeded: result.Succeeded, Failed: result.Failed, Skipped: result.Skipped}
}
