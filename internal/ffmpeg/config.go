package ffmpeg

// Config contains the locations of the ffmpeg and ffprobe binaries, along
// with any user supplied encoder profiles. Empty binary paths are resolved
// by Locate.
type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_binary_path" env:"BATCHCONV_FFMPEG_BINARY_PATH"`
	FfprobeBinPath string `yaml:"ffprobe_binary_path" env:"BATCHCONV_FFPROBE_BINARY_PATH"`

	// Profiles maps a target format to a set of ffmpeg options, keyed by
	// the option name (e.g. "AudioCodec" or "audio_codec"). These are
	// merged over the built-in profile for the format, if any.
	Profiles map[string]map[string]any `yaml:"profiles"`
}
