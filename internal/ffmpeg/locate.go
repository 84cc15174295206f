package ffmpeg

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/hbomb79/batchconv/pkg/logger"
)

var ErrBinaryNotFound = errors.New("binary not found")

// Directories searched, in order, when a binary is not found on the PATH.
var commonLocations = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/opt/local/bin",
	"/opt/homebrew/bin",
	"/snap/bin",
}

// Locate returns a copy of the configuration provided with the ffmpeg and
// ffprobe binary paths resolved.
//
// ffmpeg is taken from the configured path, then the PATH, and finally a list of
// common install locations. ffprobe is searched for alongside the resolved ffmpeg
// binary before falling back to the same search.
func Locate(config Config) (Config, error) {
	ffmpegPath, err := locateBinary("ffmpeg", config.FfmpegBinPath)
	if err != nil {
		return config, err
	}

	ffprobePath, err := locateBinary("ffprobe", config.FfprobeBinPath, filepath.Dir(ffmpegPath))
	if err != nil {
		return config, err
	}

	log.Emit(logger.DEBUG, "Using ffmpeg at %s and ffprobe at %s\n", ffmpegPath, ffprobePath)
	config.FfmpegBinPath = ffmpegPath
	config.FfprobeBinPath = ffprobePath
	return config, nil
}

func locateBinary(name string, configured string, preferredDirs ...string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}

		return "", fmt.Errorf("%w: configured %s path '%s' is not an executable file", ErrBinaryNotFound, name, configured)
	}

	binName := name
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}

	for _, dir := range preferredDirs {
		if candidate := filepath.Join(dir, binName); isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(binName); err == nil {
		return path, nil
	}

	for _, dir := range commonLocations {
		if candidate := filepath.Join(dir, binName); isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s could not be found on the PATH or in any common location", ErrBinaryNotFound, name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	return runtime.GOOS == "windows" || info.Mode().Perm()&0o111 != 0
}
