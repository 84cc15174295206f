package ffmpeg

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/mitchellh/mapstructure"
)

// A suggestion is only offered if it is at least this similar to the input.
const suggestionThreshold = 0.5

// ProfileTable holds the ffmpeg options used when converting to each
// target format, keyed by the lower case format name.
type ProfileTable map[string]ffmpeg.Options

func ptr[T any](v T) *T { return &v }

// DefaultProfiles returns the built-in encoder settings for common audio formats.
func DefaultProfiles() ProfileTable {
	return ProfileTable{
		"mp3":  {AudioCodec: ptr("libmp3lame"), AudioBitrate: ptr("192k"), SkipVideo: ptr(true)},
		"wav":  {AudioCodec: ptr("pcm_s16le"), SkipVideo: ptr(true)},
		"flac": {AudioCodec: ptr("flac"), CompressionLevel: ptr(5), SkipVideo: ptr(true)},
		"ogg":  {AudioCodec: ptr("libvorbis"), AudioBitrate: ptr("192k"), SkipVideo: ptr(true)},
		"opus": {AudioCodec: ptr("libopus"), AudioBitrate: ptr("128k"), SkipVideo: ptr(true)},
		"aac":  {AudioCodec: ptr("aac"), AudioBitrate: ptr("192k"), SkipVideo: ptr(true)},
		"m4a":  {AudioCodec: ptr("aac"), AudioBitrate: ptr("192k"), SkipVideo: ptr(true)},
		"wma":  {AudioCodec: ptr("wmav2"), AudioBitrate: ptr("192k"), SkipVideo: ptr(true)},
	}
}

// BuildProfiles merges the user supplied overrides over the default
// profiles. Each override is a map of ffmpeg option names to values, which
// is decoded in to the profile for that format.
func BuildProfiles(overrides map[string]map[string]any) (ProfileTable, error) {
	table := DefaultProfiles()
	fields := OptionFields()

	for format, options := range overrides {
		format = normalizeFormat(format)
		for key := range options {
			if _, ok := fields[normalizeOptionName(key)]; !ok {
				err := fmt.Errorf("unknown ffmpeg option '%s' in profile '%s'", key, format)
				if suggestion := closest(key, fieldNames(fields)); suggestion != "" {
					err = fmt.Errorf("%w (did you mean '%s'?)", err, suggestion)
				}

				return nil, err
			}
		}

		opts := table[format]
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &opts,
			WeaklyTypedInput: true,
			MatchName: func(mapKey, fieldName string) bool {
				return normalizeOptionName(mapKey) == normalizeOptionName(fieldName)
			},
		})
		if err != nil {
			return nil, err
		}

		if err := decoder.Decode(options); err != nil {
			return nil, fmt.Errorf("invalid ffmpeg options in profile '%s': %w", format, err)
		}

		table[format] = opts
	}

	return table, nil
}

// Options returns a copy of the options for the format provided, and
// false if no profile exists for the format.
func (table ProfileTable) Options(format string) (ffmpeg.Options, bool) {
	opts, ok := table[normalizeFormat(format)]
	return opts, ok
}

// Formats returns the sorted list of formats that have a profile.
func (table ProfileTable) Formats() []string {
	formats := make([]string, 0, len(table))
	for format := range table {
		formats = append(formats, format)
	}

	sort.Strings(formats)
	return formats
}

// Suggest returns the known format most similar to the one provided, or an
// empty string if nothing is similar enough.
func (table ProfileTable) Suggest(format string) string {
	return closest(normalizeFormat(format), table.Formats())
}

// Arguments returns the ffmpeg command line arguments the profile for the
// format will produce.
func (table ProfileTable) Arguments(format string) []string {
	opts, _ := table.Options(format)
	return opts.GetStrArguments()
}

// OptionFields returns a map of every configurable ffmpeg option name to
// the type of value it accepts (e.g. string, int, bool).
func OptionFields() map[string]string {
	out := make(map[string]string)

	typ := reflect.TypeOf(ffmpeg.Options{})
	for i := 0; i < typ.NumField(); i++ {
		fi := typ.Field(i)
		if !fi.IsExported() {
			continue
		}

		typeName := fi.Type.String()
		if fi.Type.Kind() == reflect.Ptr {
			typeName = fi.Type.Elem().String()
		}

		out[normalizeOptionName(fi.Name)] = fmt.Sprintf("%s (%s)", fi.Name, typeName)
	}

	return out
}

func fieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for _, description := range fields {
		names = append(names, strings.SplitN(description, " ", 2)[0])
	}

	sort.Strings(names)
	return names
}

func closest(input string, candidates []string) string {
	metric := metrics.NewLevenshtein()
	metric.CaseSensitive = false

	best, bestScore := "", 0.0
	for _, candidate := range candidates {
		if score := strutil.Similarity(normalizeOptionName(input), normalizeOptionName(candidate), metric); score > bestScore {
			best, bestScore = candidate, score
		}
	}

	if bestScore < suggestionThreshold {
		return ""
	}

	return best
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

func normalizeOptionName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}
