package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hbomb79/batchconv/internal/scan"
	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/hbomb79/batchconv/pkg/logger"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("WatchServ")

// Bursts of file system events are collapsed in to a single sync.
const eventDebounce = time.Second

type (
	// JobRunner runs a new conversion job restricted to the scanned files
	// accepted by the filter provided.
	JobRunner func(ctx context.Context, filter func(scan.Match) bool) (*transcode.Result, error)

	// watchService is responsible for detecting files added to the input
	// directories after the initial conversion, and converting them by running
	// a new job. Each file is handed to at most one job.
	watchService struct {
		*sync.Mutex
		config     Config
		roots      []string
		scanner    *scan.Scanner
		runJob     JobRunner
		known      map[string]struct{}
		holdTimers map[string]*time.Timer
		holdExpiry chan struct{}
	}
)

func New(config Config, roots []string, sourceFormat string, runJob JobRunner) *watchService {
	return &watchService{
		Mutex:      &sync.Mutex{},
		config:     config,
		roots:      append([]string(nil), roots...),
		scanner:    scan.New(sourceFormat),
		runJob:     runJob,
		known:      make(map[string]struct{}),
		holdTimers: make(map[string]*time.Timer),
		holdExpiry: make(chan struct{}, 1),
	}
}

// MarkKnown records paths which have already been handled, and
// should never be converted by this service.
func (service *watchService) MarkKnown(paths ...string) {
	service.Lock()
	defer service.Unlock()

	for _, path := range paths {
		service.known[path] = struct{}{}
	}
}

// Run is the main entry point of this service. It's responsible for listening
// to the OS file system and responding to change events, as well as regularly
// polling the file system irrespective of the watcher.
// To stop the service, the calling code should cancel the context provided.
func (service *watchService) Run(ctx context.Context) error {
	fsNotifyChannel := make(chan notify.EventInfo, 128)
	for _, root := range service.roots {
		if err := notify.Watch(filepath.Join(root, "..."), fsNotifyChannel, notify.Create, notify.Rename, notify.Write); err != nil {
			log.Emit(logger.WARNING, "Unable to watch %s, relying on periodic sync: %v\n", root, err)
		}
	}
	defer notify.Stop(fsNotifyChannel)

	syncInterval := service.config.ForceSyncDuration()
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	forceSync := time.NewTicker(syncInterval)
	defer forceSync.Stop()

	debounce := time.NewTimer(eventDebounce)
	debounce.Stop()
	defer debounce.Stop()
	defer service.clearHoldTimers()

	log.Emit(logger.NEW, "Watching %d directories for new files\n", len(service.roots))
	for {
		select {
		case ev := <-fsNotifyChannel:
			log.Emit(logger.VERBOSE, "File system event %v for %s\n", ev.Event(), ev.Path())
			debounce.Reset(eventDebounce)
		case <-debounce.C:
			service.Sync(ctx)
		case <-service.holdExpiry:
			service.Sync(ctx)
		case <-forceSync.C:
			service.Sync(ctx)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Watch service closed\n")
			return nil
		}
	}
}

// Sync scans the input directories for files which have not been seen before
// and converts those which have settled by running a new job. Files which have
// not yet settled are held and re-checked once they are expected to have settled.
func (service *watchService) Sync(ctx context.Context) {
	ready := service.DiscoverNewFiles()
	if len(ready) == 0 || ctx.Err() != nil {
		return
	}

	log.Emit(logger.NEW, "Detected %d new files\n", len(ready))
	result, err := service.runJob(ctx, func(m scan.Match) bool {
		_, ok := ready[m.Path]
		return ok
	})
	if err != nil {
		log.Emit(logger.ERROR, "Conversion of new files failed: %v\n", err)
		return
	}

	// Files skipped by a cancelled job are left unknown, so a later sync picks them up
	service.MarkKnown(result.AttemptedSources()...)
}

// DiscoverNewFiles returns the set of unseen files which are ready to be
// converted. Unseen files whose modtime is too recent are placed on hold.
//
// Note: This function will take ownership of the mutex, and releases it when returning
func (service *watchService) DiscoverNewFiles() map[string]struct{} {
	service.Lock()
	defer service.Unlock()

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	ready := make(map[string]struct{})
	for _, match := range service.scanner.Scan(service.roots...).Matches {
		if _, ok := service.known[match.Path]; ok {
			continue
		}

		info, err := os.Stat(match.Path)
		if err != nil {
			continue
		}

		if age := time.Since(info.ModTime()); age < minModtimeAge {
			service.scheduleHoldTimer(match.Path, minModtimeAge-age)
			continue
		}

		ready[match.Path] = struct{}{}
	}

	return ready
}

// scheduleHoldTimer arranges for a sync to occur once the file at the path
// provided is expected to have settled. If a timer is already scheduled for
// this path it is left as is.
//
// Note: the caller must hold the mutex
func (service *watchService) scheduleHoldTimer(path string, after time.Duration) {
	if _, ok := service.holdTimers[path]; ok {
		return
	}

	service.holdTimers[path] = time.AfterFunc(after, func() {
		service.Lock()
		delete(service.holdTimers, path)
		service.Unlock()

		select {
		case service.holdExpiry <- struct{}{}:
		default:
		}
	})
}

func (service *watchService) clearHoldTimers() {
	service.Lock()
	defer service.Unlock()

	for path, timer := range service.holdTimers {
		timer.Stop()
		delete(service.holdTimers, path)
	}
}
