package transcode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("source is not within root directory")

// OutputPath computes the destination of a converted file. The source's
// directory, relative to root, is mirrored beneath a per-format directory
// inside outputRoot, e.g.
//
//	OutputPath("/in/a/b/song.mp3", "/in", "/out", "wav") == "/out/WAVs/a/b/song.wav"
//
// No filesystem access is performed.
func OutputPath(source string, root string, outputRoot string, targetFormat string) (string, error) {
	format := strings.TrimPrefix(strings.TrimSpace(targetFormat), ".")

	rel, err := filepath.Rel(filepath.Clean(root), filepath.Dir(filepath.Clean(source)))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not beneath %s", ErrOutsideRoot, source, root)
	}

	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(outputRoot, FormatDirectory(format), rel, stem+"."+format), nil
}

// FormatDirectory returns the name of the directory, within the output
// root, which holds every file converted to the format given.
func FormatDirectory(format string) string {
	return strings.ToUpper(strings.TrimPrefix(format, ".")) + "s"
}
