package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/hbomb79/batchconv/internal/config"
	"github.com/hbomb79/batchconv/internal/ffmpeg"
	"github.com/hbomb79/batchconv/internal/scan"
	"github.com/labstack/gommon/bytes"
	"github.com/spf13/cobra"
)

func newScanCommand(global *globalOptions) *cobra.Command {
	var (
		inputDirs    []string
		sourceFormat string
	)

	cmd := &cobra.Command{
		Use:   "scan -i <inputDir> [-i <inputDir>...]",
		Short: "Report how many matching files each input directory contains, without converting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, func(cfg *config.Config) {
				if cmd.Flags().Changed("input") {
					cfg.Job.InputDirs = inputDirs
				}
				if cmd.Flags().Changed("source-format") {
					cfg.Job.SourceFormat = sourceFormat
				}
			})
			if err != nil {
				return fail(ExitFailure, err)
			}
			if len(cfg.Job.InputDirs) == 0 {
				return fail(ExitFailure, errors.New("at least one input directory is required"))
			}

			scanner := scan.New(cfg.Job.SourceFormat)
			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(out, "DIRECTORY\t%s FILES\tSIZE\n", strings.ToUpper(scanner.Format()))

			var (
				files int
				size  int64
			)
			for _, summary := range scanner.Summarize(cfg.Job.InputDirs...) {
				if !summary.Exists {
					fmt.Fprintf(out, "%s\tmissing\t-\n", summary.Root)
					continue
				}

				files += summary.Files
				size += summary.Bytes
				fmt.Fprintf(out, "%s\t%d\t%s\n", summary.Root, summary.Files, bytes.Format(summary.Bytes))
			}
			fmt.Fprintf(out, "TOTAL\t%d\t%s\n", files, bytes.Format(size))

			return out.Flush()
		},
	}

	cmd.Flags().StringArrayVarP(&inputDirs, "input", "i", nil, "Input directory to search (may be repeated)")
	cmd.Flags().StringVarP(&sourceFormat, "source-format", "s", "mp3", "Extension of the files to count")
	return cmd
}

func newCheckCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Locate ffmpeg and ffprobe and ensure they can be executed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, nil)
			if err != nil {
				return fail(ExitFailure, err)
			}

			located, err := ffmpeg.Locate(cfg.Ffmpeg)
			if err != nil {
				return fail(ExitFailure, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ffmpeg:  %s\n", located.FfmpegBinPath)
			fmt.Fprintf(out, "ffprobe: %s\n", located.FfprobeBinPath)

			if err := ffmpeg.NewConverter(located, nil).Check(cmd.Context()); err != nil {
				return fail(ExitFailure, err)
			}

			successColor.Fprintln(out, "ffmpeg is ready")
			return nil
		},
	}
}

func newFormatsCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the target formats with an encoder profile, and the ffmpeg options each uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global, nil)
			if err != nil {
				return fail(ExitFailure, err)
			}

			profiles, err := ffmpeg.BuildProfiles(cfg.Ffmpeg.Profiles)
			if err != nil {
				return fail(ExitFailure, err)
			}

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(out, "FORMAT\tFFMPEG OPTIONS")
			for _, format := range profiles.Formats() {
				fmt.Fprintf(out, "%s\t%s\n", format, strings.Join(profiles.Arguments(format), " "))
			}

			return out.Flush()
		},
	}
}
