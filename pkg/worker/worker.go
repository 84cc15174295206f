package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/hbomb79/batchconv/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type WorkerStatus int32

// WorkerTask is the unit of work a worker repeatedly executes. It
// returns true if the worker should call it again, or false once
// there is no work left to claim. Returned errors are logged and do
// not stop the worker.
type WorkerTask func(Worker) (bool, error)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

func (s WorkerStatus) String() string {
	switch s {
	case Sleeping:
		return "SLEEPING"
	case Working:
		return "WORKING"
	case Finished:
		return "FINISHED"
	}

	return fmt.Sprintf("UNKNOWN[%d]", int32(s))
}

type Worker interface {
	Start()
	Status() WorkerStatus
	Label() string
}

type taskWorker struct {
	label         string
	task          WorkerTask
	currentStatus atomic.Int32
}

func NewWorker(label string, task WorkerTask) *taskWorker {
	return &taskWorker{label: label, task: task}
}

// Start runs the workers task until it reports that no work
// remains. A panic raised by the task is recovered and treated
// as an error so that a single bad unit of work cannot take
// down the worker.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker with label %v\n", worker.label)
	worker.currentStatus.Store(int32(Working))

	for {
		more, err := worker.execute()
		if err != nil {
			workerLogger.Emit(logger.ERROR, "Worker with label %v has reported an error(%T): %v\n", worker.label, err, err.Error())
		}

		if !more {
			break
		}
	}

	worker.currentStatus.Store(int32(Finished))
	workerLogger.Emit(logger.STOP, "Worker with label %v has stopped\n", worker.label)
}

func (worker *taskWorker) execute() (more bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			more, err = true, fmt.Errorf("worker task panicked: %v", r)
		}
	}()

	return worker.task(worker)
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return WorkerStatus(worker.currentStatus.Load())
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}
