// Package activity is responsible for listening to job events and pushing
// snapshots of the running job to monitor clients.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/hbomb79/batchconv/pkg/logger"
)

var log = logger.Get("Activity")

const (
	DEBOUNCE_DURATION  time.Duration = time.Millisecond * 250
	MAX_TIMER_DURATION time.Duration = time.Second
)

type (
	Broadcaster interface {
		BroadcastJobUpdate(JobSnapshot) error
	}

	activityService struct {
		*sync.Mutex
		broadcasters   []Broadcaster
		jobs           map[uuid.UUID]*jobState
		latest         uuid.UUID
		closed         bool
		debounceTimers map[uuid.UUID]*time.Timer
		maxTimers      map[uuid.UUID]*time.Timer
	}
)

// New creates an activity service which immediately begins tracking the jobs
// dispatching events on the bus provided.
func New(eventBus event.EventHandler) *activityService {
	service := &activityService{
		Mutex:          &sync.Mutex{},
		jobs:           make(map[uuid.UUID]*jobState),
		debounceTimers: make(map[uuid.UUID]*time.Timer),
		maxTimers:      make(map[uuid.UUID]*time.Timer),
	}

	eventBus.RegisterHandlerFunction(event.JOB_START, service.handleEvent)
	eventBus.RegisterHandlerFunction(event.JOB_COMPLETE, service.handleEvent)
	eventBus.RegisterHandlerFunction(event.JOB_PROGRESS, service.handleEvent)
	eventBus.RegisterHandlerFunction(event.TASK_UPDATE, service.handleEvent)

	return service
}

// RegisterBroadcaster adds a broadcaster which will be sent a snapshot
// of a job each time its state changes.
func (service *activityService) RegisterBroadcaster(broadcaster Broadcaster) {
	service.Lock()
	defer service.Unlock()

	service.broadcasters = append(service.broadcasters, broadcaster)
}

// Run blocks until the context provided is cancelled. Events
// dispatched after Run returns are ignored.
func (service *activityService) Run(ctx context.Context) error {
	log.Emit(logger.NEW, "Activity service started\n")
	<-ctx.Done()

	service.Lock()
	defer service.Unlock()
	service.closed = true
	for id := range service.debounceTimers {
		service.stopTimers(id)
	}

	log.Emit(logger.STOP, "Activity service closed\n")
	return nil
}

// Latest returns the snapshot of the most recently started job, if any.
func (service *activityService) Latest() (JobSnapshot, bool) {
	service.Lock()
	defer service.Unlock()

	state, ok := service.jobs[service.latest]
	if !ok {
		return JobSnapshot{}, false
	}

	return state.Snapshot(), true
}

// Job returns the snapshot of the job with the ID provided, if known.
func (service *activityService) Job(id uuid.UUID) (JobSnapshot, bool) {
	service.Lock()
	defer service.Unlock()

	state, ok := service.jobs[id]
	if !ok {
		return JobSnapshot{}, false
	}

	return state.Snapshot(), true
}

// handleEvent folds the event in to the jobs state. Job start and completion
// are broadcast immediately, while task and progress updates are debounced as
// they can arrive far faster than any client could make use of them.
func (service *activityService) handleEvent(ev event.Event, payload event.Payload) {
	service.Lock()
	defer service.Unlock()

	if service.closed {
		return
	}

	switch ev {
	case event.JOB_START:
		p := payload.(event.JobPayload)
		service.jobs[p.JobID] = newJobState(p, time.Now())
		service.latest = p.JobID
		service.broadcastNow(p.JobID)
	case event.JOB_COMPLETE:
		p := payload.(event.JobPayload)
		if state, ok := service.jobs[p.JobID]; ok {
			state.applyComplete(p)
			service.broadcastNow(p.JobID)
		}
	case event.JOB_PROGRESS:
		p := payload.(event.ProgressPayload)
		if state, ok := service.jobs[p.JobID]; ok {
			state.applyProgress(p)
			service.scheduleEventBroadcast(p.JobID)
		}
	case event.TASK_UPDATE:
		p := payload.(event.TaskPayload)
		if state, ok := service.jobs[p.JobID]; ok {
			state.applyTask(p)
			service.scheduleEventBroadcast(p.JobID)
		}
	}
}

// scheduleEventBroadcast (re)sets a debounce timer for the job, as well as a max timer
// if one is not already running, so that a steady stream of events cannot starve the broadcast.
//
// Note: the caller must hold the mutex
func (service *activityService) scheduleEventBroadcast(jobID uuid.UUID) {
	broadcaster := func() { service.broadcast(jobID) }

	if t, ok := service.debounceTimers[jobID]; ok {
		t.Stop()
	}
	service.debounceTimers[jobID] = time.AfterFunc(DEBOUNCE_DURATION, broadcaster)

	if _, ok := service.maxTimers[jobID]; !ok {
		service.maxTimers[jobID] = time.AfterFunc(MAX_TIMER_DURATION, broadcaster)
	}
}

func (service *activityService) broadcast(jobID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	if service.closed {
		return
	}

	service.broadcastNow(jobID)
}

// broadcastNow cancels any pending broadcast for the job and sends
// the current snapshot.
//
// Note: the caller must hold the mutex
func (service *activityService) broadcastNow(jobID uuid.UUID) {
	service.stopTimers(jobID)

	state, ok := service.jobs[jobID]
	if !ok {
		return
	}

	snapshot := state.Snapshot()
	for _, broadcaster := range service.broadcasters {
		if err := broadcaster.BroadcastJobUpdate(snapshot); err != nil {
			log.Emit(logger.DEBUG, "Failed to broadcast update for job %s: %v\n", jobID, err)
		}
	}
}

func (service *activityService) stopTimers(jobID uuid.UUID) {
	if t, ok := service.debounceTimers[jobID]; ok {
		t.Stop()
		delete(service.debounceTimers, jobID)
	}

	if t, ok := service.maxTimers[jobID]; ok {
		t.Stop()
		delete(service.maxTimers, jobID)
	}
}
