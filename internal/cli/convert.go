package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hbomb79/batchconv/internal/activity"
	"github.com/hbomb79/batchconv/internal/api"
	"github.com/hbomb79/batchconv/internal/config"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/hbomb79/batchconv/internal/ffmpeg"
	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/hbomb79/batchconv/internal/watch"
	"github.com/hbomb79/batchconv/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type convertOptions struct {
	inputDirs    []string
	outputDir    string
	sourceFormat string
	targetFormat string
	concurrency  int
	watch        bool
	monitorAddr  string
	noProgress   bool
}

func newConvertCommand(global *globalOptions) *cobra.Command {
	opts := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert -i <inputDir> [-i <inputDir>...] -o <outputDir>",
		Short: "Convert every matching file beneath the input directories",
		Long: `Recursively finds every file with the source format extension beneath each
input directory and converts it to the target format. Converted files are written
beneath <outputDir>/<TARGET>s/, mirroring their location relative to the input
directory they were found in.

Interrupting once finishes the conversions already running and skips the rest.
Interrupting a second time aborts the running conversions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConvert(cmd, global, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.inputDirs, "input", "i", nil, "Input directory to search (may be repeated)")
	flags.StringVarP(&opts.outputDir, "output", "o", "", "Output directory")
	flags.StringVarP(&opts.sourceFormat, "source-format", "s", "mp3", "Extension of the files to convert")
	flags.StringVarP(&opts.targetFormat, "target-format", "t", "wav", "Format to convert files to")
	flags.IntVarP(&opts.concurrency, "jobs", "j", 0, "Maximum number of concurrent conversions (0 uses the number of CPUs)")
	flags.IntVar(&opts.concurrency, "threads", 0, "Alias for --jobs")
	flags.BoolVar(&opts.watch, "watch", false, "After converting, keep watching the input directories for new files")
	flags.StringVar(&opts.monitorAddr, "monitor", "", "Serve the activity monitor on this address (e.g. localhost:8090)")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

// applyFlags overrides the configuration with any flag explicitly set on the command line.
func (opts *convertOptions) applyFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("input") {
		cfg.Job.InputDirs = opts.inputDirs
	}
	if flags.Changed("output") {
		cfg.Job.OutputDir = opts.outputDir
	}
	if flags.Changed("source-format") {
		cfg.Job.SourceFormat = opts.sourceFormat
	}
	if flags.Changed("target-format") {
		cfg.Job.TargetFormat = opts.targetFormat
	}
	if flags.Changed("jobs") || flags.Changed("threads") {
		cfg.Job.Concurrency = opts.concurrency
	}
	if flags.Changed("watch") {
		cfg.Watch.Enabled = opts.watch
	}
	if flags.Changed("monitor") {
		cfg.Monitor.HostAddr = opts.monitorAddr
	}
}

func runConvert(cmd *cobra.Command, global *globalOptions, opts *convertOptions) error {
	cfg, err := loadConfig(global, func(cfg *config.Config) { opts.applyFlags(cfg, cmd.Flags()) })
	if err != nil {
		return fail(ExitFailure, err)
	}
	if err := cfg.ValidateJob(); err != nil {
		return fail(ExitFailure, err)
	}

	converter, err := newConverter(cfg)
	if err != nil {
		return fail(ExitFailure, err)
	}

	ctx, abort := context.WithCancel(cmd.Context())
	defer abort()

	eventBus := event.New()
	if !opts.noProgress && isTerminal(cmd.ErrOrStderr()) {
		newProgressReporter(cmd.ErrOrStderr()).Register(eventBus)
		if !global.verbose {
			// Per-file logging would tear the progress bar
			logger.SetMinLoggingLevel(max(logger.WARNING.Level(), logger.MinLoggingLevel()))
		}
	}

	sess := newSession(cfg.TranscodeJob(), converter, eventBus, cmd.OutOrStdout())

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	go handleInterrupts(ctx, signals, func() {
		sess.Stop()
		stopWatching()
	}, abort)

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	if cfg.Monitor.HostAddr != "" {
		monitorCtx, stopMonitor := context.WithCancel(ctx)
		defer stopMonitor()
		startMonitor(monitorCtx, wg, &cfg.Monitor, eventBus, sess)
	}

	result, err := sess.RunJob(ctx)
	if err != nil {
		if errors.Is(err, transcode.ErrConverterUnavailable) {
			return fail(ExitFailure, fmt.Errorf("%w (run 'batchconv check' for details)", err))
		}

		return fail(ExitFailure, err)
	}

	if cfg.Watch.Enabled && !result.Cancelled {
		service := watch.New(cfg.Watch, cfg.Job.InputDirs, cfg.Job.SourceFormat, sess.RunFiltered)
		service.MarkKnown(result.AttemptedSources()...)
		if err := service.Run(watchCtx); err != nil {
			return fail(ExitFailure, err)
		}
	}

	if result.Unsuccessful() {
		return fail(ExitUnsuccessful, nil)
	}

	return nil
}

// newConverter locates ffmpeg and builds the encoder profiles. If ffmpeg cannot be
// found the converter is still returned, and the job reports it as unavailable.
func newConverter(cfg *config.Config) (*ffmpeg.Converter, error) {
	profiles, err := ffmpeg.BuildProfiles(cfg.Ffmpeg.Profiles)
	if err != nil {
		return nil, err
	}

	if _, ok := profiles.Options(cfg.Job.TargetFormat); !ok {
		msg := fmt.Sprintf("No encoder profile for '%s', ffmpeg will choose the encoder from the file extension", cfg.Job.TargetFormat)
		if suggestion := profiles.Suggest(cfg.Job.TargetFormat); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean '%s'?)", suggestion)
		}
		log.Emit(logger.WARNING, "%s\n", msg)
	}

	located, err := ffmpeg.Locate(cfg.Ffmpeg)
	if err != nil {
		log.Emit(logger.ERROR, "%v\n", err)
		return ffmpeg.NewConverter(cfg.Ffmpeg, profiles), nil
	}

	log.Emit(logger.DEBUG, "Using ffmpeg %s and ffprobe %s\n", located.FfmpegBinPath, located.FfprobeBinPath)
	return ffmpeg.NewConverter(located, profiles), nil
}

// startMonitor serves the activity monitor until the context is cancelled. A
// monitor which fails to start is reported, but does not stop the conversion.
func startMonitor(ctx context.Context, wg *sync.WaitGroup, config *api.RestConfig, eventBus event.EventCoordinator, sess *session) {
	service := activity.New(eventBus)
	gateway := api.NewRestGateway(config, service, sess.CancelJob)
	service.RegisterBroadcaster(gateway)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			log.Emit(logger.ERROR, "Activity service stopped: %v\n", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := gateway.Run(ctx); err != nil {
			log.Emit(logger.ERROR, "Activity monitor stopped: %v\n", err)
		}
	}()
}
