package ffmpeg_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hbomb79/batchconv/internal/ffmpeg"
	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

const (
	healthyScript = "#!/bin/sh\necho \"fake version 1.0\"\nexit 0\n"
	brokenScript  = "#!/bin/sh\nexit 3\n"

	probeScript = "#!/bin/sh\necho '{\"format\": {}, \"streams\": []}'\n"

	// Writes the output file (the last argument) after flooding stderr
	// with progress lines, then exits with $EXIT_CODE.
	encoderScript = `#!/bin/sh
for out; do :; done
i=0
while [ $i -lt 200 ]; do
	echo "frame=$i fps=0 q=0 size=1kB time=00:00:01.00 bitrate=1.0kbits/s speed=1x" >&2
	i=$((i+1))
done
echo "encoded" > "$out"
exit ${EXIT_CODE:-0}
`
)

func fakeBinaries(t *testing.T, ffmpegScript string, ffprobeScript string) *fs.Dir {
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}

	return fs.NewDir(t, "bin",
		fs.WithFile("ffmpeg", ffmpegScript, fs.WithMode(0o755)),
		fs.WithFile("ffprobe", ffprobeScript, fs.WithMode(0o755)),
		fs.WithFile("not-executable", healthyScript, fs.WithMode(0o644)),
	)
}

func Test_Locate_FindsFfprobeAlongsideFfmpeg(t *testing.T) {
	t.Parallel()

	bin := fakeBinaries(t, healthyScript, healthyScript)
	config, err := ffmpeg.Locate(ffmpeg.Config{FfmpegBinPath: bin.Join("ffmpeg")})
	require.NoError(t, err)
	assert.Equal(t, bin.Join("ffmpeg"), config.FfmpegBinPath)
	assert.Equal(t, bin.Join("ffprobe"), config.FfprobeBinPath)
}

func Test_Locate_RejectsConfiguredPathThatIsNotExecutable(t *testing.T) {
	t.Parallel()

	bin := fakeBinaries(t, healthyScript, healthyScript)
	for _, path := range []string{bin.Join("not-executable"), bin.Join("missing"), bin.Path()} {
		_, err := ffmpeg.Locate(ffmpeg.Config{FfmpegBinPath: path, FfprobeBinPath: bin.Join("ffprobe")})
		assert.ErrorIs(t, err, ffmpeg.ErrBinaryNotFound, path)
	}
}

func Test_Check(t *testing.T) {
	t.Parallel()

	healthy := fakeBinaries(t, healthyScript, healthyScript)
	broken := fakeBinaries(t, healthyScript, brokenScript)

	tests := []struct {
		name      string
		config    ffmpeg.Config
		available bool
	}{
		{"both binaries work", ffmpeg.Config{FfmpegBinPath: healthy.Join("ffmpeg"), FfprobeBinPath: healthy.Join("ffprobe")}, true},
		{"ffprobe exits non-zero", ffmpeg.Config{FfmpegBinPath: broken.Join("ffmpeg"), FfprobeBinPath: broken.Join("ffprobe")}, false},
		{"binary missing", ffmpeg.Config{FfmpegBinPath: filepath.Join(healthy.Path(), "nope"), FfprobeBinPath: healthy.Join("ffprobe")}, false},
		{"paths not resolved", ffmpeg.Config{}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ffmpeg.NewConverter(test.config, nil).Check(context.Background())
			if test.available {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, transcode.ErrConverterUnavailable)
			}
		})
	}
}

// Test_Convert_RealFfmpeg exercises the converter against a real ffmpeg
// installation, and is skipped if one cannot be found.
func Test_Convert_RealFfmpeg(t *testing.T) {
	config, err := ffmpeg.Locate(ffmpeg.Config{})
	if err != nil {
		t.Skipf("ffmpeg not available: %v", err)
	}

	dir := fs.NewDir(t, "convert", fs.WithFile("garbage.wav", "this is not audio"))
	source := dir.Join("tone.wav")
	gen := exec.Command(config.FfmpegBinPath, "-hide_banner", "-loglevel", "error", "-f", "lavfi", "-i", "sine=frequency=440:duration=1", "-y", source)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("unable to generate test tone: %v (%s)", err, out)
	}

	converter := ffmpeg.NewConverter(config, nil)
	require.NoError(t, converter.Check(context.Background()))

	dest := dir.Join("out", "tone.flac")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	err = converter.Convert(context.Background(), transcode.Request{SourcePath: source, DestinationPath: dest, SourceFormat: "wav", TargetFormat: "flac"})
	require.NoError(t, err)
	assert.FileExists(t, dest)

	badDest := dir.Join("out", "garbage.flac")
	err = converter.Convert(context.Background(), transcode.Request{SourcePath: dir.Join("garbage.wav"), DestinationPath: badDest, SourceFormat: "wav", TargetFormat: "flac"})
	assert.Error(t, err)
	assert.NoFileExists(t, badDest)
}

func Test_Convert_FakeEncoder(t *testing.T) {
	bin := fakeBinaries(t, encoderScript, probeScript)
	dir := fs.NewDir(t, "convert", fs.WithFile("song.mp3", "audio"))
	converter := ffmpeg.NewConverter(ffmpeg.Config{FfmpegBinPath: bin.Join("ffmpeg"), FfprobeBinPath: bin.Join("ffprobe")}, nil)

	for i := 0; i < 25; i++ {
		dest := dir.Join(fmt.Sprintf("song-%d.wav", i))
		err := converter.Convert(context.Background(), transcode.Request{SourcePath: dir.Join("song.mp3"), DestinationPath: dest, SourceFormat: "mp3", TargetFormat: "wav"})
		require.NoError(t, err)
		assert.FileExists(t, dest)
	}

	t.Setenv("EXIT_CODE", "1")
	dest := dir.Join("failed.wav")
	err := converter.Convert(context.Background(), transcode.Request{SourcePath: dir.Join("song.mp3"), DestinationPath: dest, SourceFormat: "mp3", TargetFormat: "wav"})
	assert.ErrorContains(t, err, "ffmpeg exited with status 1")
	assert.NoFileExists(t, dest, "partial output should be removed")
}
