// Package cli implements the batchconv command line: converting directories of
// audio, inspecting what would be converted and checking the ffmpeg installation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/hbomb79/batchconv/internal/config"
	"github.com/hbomb79/batchconv/pkg/logger"
	"github.com/spf13/cobra"
)

var log = logger.Get("CLI")

// Process exit codes
const (
	ExitOK           = 0
	ExitUnsuccessful = 1
	ExitFailure      = 2
)

var (
	version = "dev"
	commit  = "none"
)

type (
	// exitError carries the exit code a command wants the process to end with.
	// A nil err means the command has already reported the problem.
	exitError struct {
		code int
		err  error
	}

	globalOptions struct {
		configPath string
		verbose    bool
	}
)

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}

	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

// Execute runs the command line with the arguments provided, returning
// the exit code the process should end with.
func Execute(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	logger.SetOutput(stderr)

	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	code := ExitFailure
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		code = exitErr.code
		err = exitErr.err
	}

	if err != nil {
		color.New(color.FgHiRed, color.Bold).Fprintf(stderr, "Error: %v\n", err)
	}

	return code
}

func NewRootCommand() *cobra.Command {
	global := &globalOptions{}
	root := &cobra.Command{
		Use:           "batchconv",
		Short:         "Convert directories of audio files from one format to another using ffmpeg",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&global.configPath, "config", "", "Path to a YAML configuration file")
	root.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newConvertCommand(global),
		newScanCommand(global),
		newCheckCommand(global),
		newFormatsCommand(global),
	)

	return root
}

// loadConfig loads the configuration file (if any) and environment, applies
// the command line overrides and configures logging.
func loadConfig(global *globalOptions, overrides func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		overrides(cfg)
	}

	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if global.verbose {
		level = logger.DEBUG
	}
	logger.SetMinLoggingLevel(level.Level())

	log.Emit(logger.DEBUG, "Loaded configuration: %+v\n", *cfg)
	return cfg, nil
}
