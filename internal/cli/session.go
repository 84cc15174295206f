package cli

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/api/jobs"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/hbomb79/batchconv/internal/scan"
	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/hbomb79/batchconv/pkg/logger"
)

// session runs the jobs of a single convert invocation. It tracks the job
// currently running so that it can be cancelled by an interrupt or by a
// monitor client.
type session struct {
	sync.Mutex
	config    transcode.JobConfig
	converter transcode.Converter
	eventBus  event.EventCoordinator
	out       io.Writer
	current   *transcode.Job
	stopped   bool
}

func newSession(config transcode.JobConfig, converter transcode.Converter, eventBus event.EventCoordinator, out io.Writer) *session {
	return &session{config: config, converter: converter, eventBus: eventBus, out: out}
}

// RunJob creates and runs a new job, printing a summary once it completes.
func (s *session) RunJob(ctx context.Context, opts ...transcode.JobOption) (*transcode.Result, error) {
	job, err := transcode.NewJob(s.config, s.converter, s.eventBus, opts...)
	if err != nil {
		return nil, err
	}

	s.Lock()
	s.current = job
	if s.stopped {
		job.Cancel()
	}
	s.Unlock()

	defer func() {
		s.Lock()
		s.current = nil
		s.Unlock()
	}()

	result, err := job.Run(ctx)
	if err != nil {
		return nil, err
	}

	printSummary(s.out, result)
	return result, nil
}

// RunFiltered runs a job restricted to the scanned files accepted by the filter.
func (s *session) RunFiltered(ctx context.Context, filter func(scan.Match) bool) (*transcode.Result, error) {
	return s.RunJob(ctx, transcode.WithSourceFilter(filter))
}

// Stop cooperatively cancels the running job, and any job started afterwards.
func (s *session) Stop() {
	s.Lock()
	defer s.Unlock()

	s.stopped = true
	if s.current != nil {
		s.current.Cancel()
	}
}

// CancelJob cancels the running job if its ID matches the one provided.
func (s *session) CancelJob(id uuid.UUID) error {
	s.Lock()
	defer s.Unlock()

	if s.current == nil || s.current.ID() != id {
		return jobs.ErrUnknownJob
	}

	s.current.Cancel()
	return nil
}

// handleInterrupts stops the session on the first signal received, and aborts
// (cancelling running conversions) on the second.
func handleInterrupts(ctx context.Context, signals <-chan os.Signal, stop func(), abort func()) {
	received := 0
	for {
		select {
		case sig := <-signals:
			received++
			if received == 1 {
				log.Emit(logger.STOP, "Received %v, finishing running conversions. Interrupt again to abort them\n", sig)
				stop()
				continue
			}

			log.Emit(logger.STOP, "Received %v, aborting running conversions\n", sig)
			abort()
			return
		case <-ctx.Done():
			return
		}
	}
}
