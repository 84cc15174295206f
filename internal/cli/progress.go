package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// progressReporter renders a progress bar for each job, driven by the
// events the job dispatches.
type progressReporter struct {
	sync.Mutex
	out  io.Writer
	bars map[uuid.UUID]*progressbar.ProgressBar
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out, bars: make(map[uuid.UUID]*progressbar.ProgressBar)}
}

// isTerminal returns true if the writer is a file attached to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (reporter *progressReporter) Register(eventBus event.EventHandler) {
	eventBus.RegisterHandlerFunction(event.JOB_START, reporter.handleEvent)
	eventBus.RegisterHandlerFunction(event.JOB_PROGRESS, reporter.handleEvent)
	eventBus.RegisterHandlerFunction(event.JOB_COMPLETE, reporter.handleEvent)
}

func (reporter *progressReporter) handleEvent(ev event.Event, payload event.Payload) {
	reporter.Lock()
	defer reporter.Unlock()

	switch ev {
	case event.JOB_START:
		p := payload.(event.JobPayload)
		if p.Total == 0 {
			return
		}

		reporter.bars[p.JobID] = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(reporter.out),
			progressbar.OptionSetDescription(fmt.Sprintf("%s -> %s", p.SourceFormat, p.TargetFormat)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(reporter.out) }),
		)
	case event.JOB_PROGRESS:
		p := payload.(event.ProgressPayload)
		if bar, ok := reporter.bars[p.JobID]; ok {
			_ = bar.Set(p.Completed)
		}
	case event.JOB_COMPLETE:
		p := payload.(event.JobPayload)
		if bar, ok := reporter.bars[p.JobID]; ok {
			if !bar.IsFinished() {
				_ = bar.Finish()
			}
			delete(reporter.bars, p.JobID)
		}
	}
}
