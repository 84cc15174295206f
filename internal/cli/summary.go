package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/hbomb79/batchconv/internal/transcode"
)

var (
	successColor = color.New(color.FgHiGreen)
	warningColor = color.New(color.FgYellow)
	failureColor = color.New(color.FgHiRed)
)

// printSummary writes a human readable report of the job result.
func printSummary(w io.Writer, result *transcode.Result) {
	for _, warning := range result.Warnings {
		warningColor.Fprintf(w, "warning: %v\n", warning)
	}

	if result.Total == 0 {
		fmt.Fprintln(w, "No matching files found, nothing to convert")
		return
	}

	for _, task := range result.Tasks {
		if task.Status == transcode.FAILED {
			failureColor.Fprintf(w, "failed: %s: %s\n", task.Source, task.Diagnostic)
		}
	}

	line := successColor
	if result.Unsuccessful() {
		line = failureColor
	} else if result.Failed > 0 || result.Skipped > 0 {
		line = warningColor
	}

	line.Fprintf(w, "Converted %d of %d files (%d failed, %d skipped) in %s\n",
		result.Succeeded, result.Total, result.Failed, result.Skipped, result.Duration.Round(10*time.Millisecond))
	if result.Cancelled {
		warningColor.Fprintln(w, "Job was cancelled before all files were converted")
	}
}
