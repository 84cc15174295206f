package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/batchconv/internal/api"
	"github.com/hbomb79/batchconv/internal/ffmpeg"
	"github.com/hbomb79/batchconv/internal/transcode"
	"github.com/hbomb79/batchconv/internal/watch"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// Config is the struct used to contain the various user config
// supplied by file, environment variables or command line flags.
type Config struct {
	Job      JobConfig      `yaml:"job" validate:"-"`
	Ffmpeg   ffmpeg.Config  `yaml:"ffmpeg"`
	Monitor  api.RestConfig `yaml:"monitor"`
	Watch    watch.Config   `yaml:"watch"`
	LogLevel string         `yaml:"log_level" env:"BATCHCONV_LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info warn warning error"`
}

// JobConfig describes the conversion to perform.
type JobConfig struct {
	InputDirs    []string `yaml:"input_dirs" env:"BATCHCONV_INPUT_DIRS" env-separator:"," validate:"required,min=1,dive,required"`
	OutputDir    string   `yaml:"output_dir" env:"BATCHCONV_OUTPUT_DIR" validate:"required"`
	SourceFormat string   `yaml:"source_format" env:"BATCHCONV_SOURCE_FORMAT" env-default:"mp3" validate:"required"`
	TargetFormat string   `yaml:"target_format" env:"BATCHCONV_TARGET_FORMAT" env-default:"wav" validate:"required"`

	// The maximum number of concurrent conversions. Zero uses
	// the number of CPUs available.
	Concurrency int `yaml:"concurrency" env:"BATCHCONV_CONCURRENCY" env-default:"0" validate:"gte=0"`
}

var (
	validate = validator.New()

	ErrUnsupportedFormat = errors.New("unsupported configuration file format")

	// File extensions understood by cleanenv.
	supportedExtensions = []string{".yaml", ".yml", ".json", ".toml", ".edn", ".env"}
)

// Load reads the configuration from the YAML file at the path provided, with
// any matching environment variables taking precedence. If no path is given,
// only the environment (and defaults) are used.
func Load(path string) (*Config, error) {
	config := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}

		return config, nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand configuration path '%s': %w", path, err)
	}
	if ext := strings.ToLower(filepath.Ext(expanded)); !slices.Contains(supportedExtensions, ext) {
		return nil, fmt.Errorf("%w: '%s' (expected one of %s)", ErrUnsupportedFormat, path, strings.Join(supportedExtensions, ", "))
	}

	if err := cleanenv.ReadConfig(expanded, config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from '%s': %w", path, err)
	}

	return config, nil
}

// ExpandPaths replaces a leading '~' in every configured path with the
// current users home directory.
func (config *Config) ExpandPaths() error {
	var errs []error
	expand := func(path *string) {
		if *path == "" {
			return
		}

		expanded, err := homedir.Expand(*path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to expand path '%s': %w", *path, err))
			return
		}

		*path = expanded
	}

	for i := range config.Job.InputDirs {
		expand(&config.Job.InputDirs[i])
	}
	expand(&config.Job.OutputDir)
	expand(&config.Ffmpeg.FfmpegBinPath)
	expand(&config.Ffmpeg.FfprobeBinPath)

	return errors.Join(errs...)
}

// Validate checks the general configuration, excluding the job
// configuration (see ValidateJob).
func (config *Config) Validate() error {
	return describeValidationError(validate.Struct(config))
}

// ValidateJob checks that the job configuration describes a runnable job.
func (config *Config) ValidateJob() error {
	return describeValidationError(validate.Struct(config.Job))
}

// TranscodeJob returns the job configuration in the form accepted
// by transcode.NewJob.
func (config *Config) TranscodeJob() transcode.JobConfig {
	return transcode.JobConfig{
		InputDirs:    append([]string(nil), config.Job.InputDirs...),
		OutputDir:    config.Job.OutputDir,
		SourceFormat: config.Job.SourceFormat,
		TargetFormat: config.Job.TargetFormat,
		Concurrency:  config.Job.Concurrency,
	}
}

func describeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	problems := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		if fieldErr.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed '%s=%s' (got '%v')", fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Param(), fieldErr.Value()))
		} else {
			problems = append(problems, fmt.Sprintf("%s failed '%s'", fieldErr.Namespace(), fieldErr.Tag()))
		}
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}
