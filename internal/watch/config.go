package watch

import "time"

// Config contains configuration options that allow
// customization of how newly added files are detected.
type Config struct {
	// When enabled, the input directories are watched after the initial
	// job completes and any new files are converted automatically.
	Enabled bool `yaml:"enabled" env:"BATCHCONV_WATCH" env-default:"false"`

	// The service uses a directory watcher, but a 'force' sync is performed on
	// a regular interval to protect against the watcher missing events.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"BATCHCONV_WATCH_FORCE_SYNC_SECONDS" env-default:"60" validate:"gte=1"`

	// When a new file is detected, it's likely to still be being written by
	// another program. As we cannot KNOW when the write is complete, we instead
	// wait for the 'modtime' of the file to be at least this long in the past.
	RequiredModTimeAgeSeconds int `yaml:"settle_seconds" env:"BATCHCONV_WATCH_SETTLE_SECONDS" env-default:"10" validate:"gte=0"`
}

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) ForceSyncDuration() time.Duration {
	return time.Duration(config.ForceSyncSeconds) * time.Second
}
