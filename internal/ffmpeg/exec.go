package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/hbomb79/batchconv/pkg/logger"
)

var (
	log = logger.Get("FFmpeg")

	ffmpegMessageMatcher = regexp.MustCompile(`(?s)message: ({.*})`)
)

// Converter converts files by running one ffmpeg process per file, using the
// encoder profile configured for the requested target format.
type Converter struct {
	config   Config
	profiles ProfileTable
}

func NewConverter(config Config, profiles ProfileTable) *Converter {
	if profiles == nil {
		profiles = DefaultProfiles()
	}

	return &Converter{config: config, profiles: profiles}
}

// Check ensures both the ffmpeg and ffprobe binaries can be executed. Any
// failure is reported as transcode.ErrConverterUnavailable.
func (converter *Converter) Check(ctx context.Context) error {
	for _, bin := range []string{converter.config.FfmpegBinPath, converter.config.FfprobeBinPath} {
		if bin == "" {
			return fmt.Errorf("%w: ffmpeg and ffprobe binary paths must both be set", transcode.ErrConverterUnavailable)
		}

		out, err := exec.CommandContext(ctx, bin, "-version").CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w: '%s -version' failed: %v", transcode.ErrConverterUnavailable, bin, err)
		}

		log.Emit(logger.DEBUG, "%s\n", firstLine(out))
	}

	return nil
}

// Convert runs ffmpeg to convert the request's source file in to the destination.
// The destination is always overwritten. If the conversion fails, any partial
// output is removed.
func (converter *Converter) Convert(ctx context.Context, request transcode.Request) error {
	opts, _ := converter.profiles.Options(request.TargetFormat)
	opts.Overwrite = ptr(true)
	opts.HideBanner = ptr(true)

	// Progress reporting stays disabled: with it enabled the transcoder closes its
	// progress channel when ffmpeg exits, while its stderr parser may still be
	// sending on it. Without it, Start blocks until ffmpeg has exited.
	trans := ffmpeg.
		New(&ffmpeg.Config{
			FfmpegBinPath:  converter.config.FfmpegBinPath,
			FfprobeBinPath: converter.config.FfprobeBinPath,
		}).
		Input(request.SourcePath).
		Output(request.DestinationPath).
		WithContext(&ctx)

	if _, err := trans.Start(&opts); err != nil {
		removePartialOutput(request.DestinationPath)
		return parseFfmpegError(err)
	}

	cmd := trans.GetRunningCmdInstance()
	if cmd == nil || cmd.ProcessState == nil {
		removePartialOutput(request.DestinationPath)
		return errors.New("ffmpeg did not run")
	}

	if !cmd.ProcessState.Success() {
		removePartialOutput(request.DestinationPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("ffmpeg exited with status %d", cmd.ProcessState.ExitCode())
	}

	if info, err := os.Stat(request.DestinationPath); err != nil || info.Size() == 0 {
		removePartialOutput(request.DestinationPath)
		return errors.New("ffmpeg exited successfully but produced no output")
	}

	return nil
}

func removePartialOutput(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Emit(logger.WARNING, "Failed to remove partial output %s: %v\n", path, err)
	}
}

func firstLine(out []byte) string {
	line, _, _ := bufio.NewReader(bytes.NewReader(out)).ReadLine()
	return string(line)
}

func parseFfmpegError(err error) error {
	// Try and pick out some relevant information from the HUGE
	// output log from ffmpeg. The error we get contains lots of information
	// about how the binary was compiled... this is useless info, we just
	// want the 'message' JSON that is encoded inside.
	groups := ffmpegMessageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	// ffmpeg error is returned as a JSON encoded string. Unmarshal so we can extract the
	// error string..
	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		return errors.New(groups[1])
	}

	ffmpegException, ok := out["error"].(map[string]interface{})
	if !ok {
		return errors.New(groups[1])
	}

	if message, ok := ffmpegException["string"].(string); ok {
		return errors.New(message)
	}

	return errors.New(groups[1])
}
