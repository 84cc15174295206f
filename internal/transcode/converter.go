package transcode

import (
	"context"
	"errors"
)

// ErrConverterUnavailable is returned by Job.Run when the converter cannot
// be executed at all. No task is dispatched in this case.
var ErrConverterUnavailable = errors.New("converter unavailable")

type (
	// Request describes a single conversion. Format identifiers are
	// passed through exactly as configured on the job.
	Request struct {
		SourcePath      string
		DestinationPath string
		SourceFormat    string
		TargetFormat    string
	}

	// Converter performs the conversion of a single file. Convert returns
	// nil on success, and otherwise an error whose message is recorded as
	// the diagnostic for the failed task. Cancelling the context passed to
	// Convert should abort the conversion.
	Converter interface {
		Check(ctx context.Context) error
		Convert(ctx context.Context, request Request) error
	}
)
