package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbomb79/batchconv/pkg/logger"
)

var log = logger.Get("Scanner")

// ErrMissingRoot is wrapped by the Warning recorded for an
// input root which does not exist, or is not a directory.
var ErrMissingRoot = errors.New("input directory not found")

type (
	// Match is a single file discovered beneath one of the scanned roots.
	Match struct {
		Path string
		Root string
	}

	// Warning is a non-fatal problem encountered while scanning. Scanning
	// continues past every warning.
	Warning struct {
		Path string
		Err  error
	}

	Result struct {
		Matches  []Match
		Warnings []Warning
	}

	// Scanner enumerates the files beneath a set of root
	// directories whose extension matches the configured format.
	Scanner struct {
		format string
	}
)

func (w Warning) Error() string { return fmt.Sprintf("%s: %v", w.Path, w.Err) }
func (w Warning) Unwrap() error { return w.Err }

// NormalizeFormat returns the canonical form of a format identifier. Leading
// dots and surrounding whitespace are removed, and the result is lower case.
func NormalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

func New(format string) *Scanner {
	return &Scanner{format: NormalizeFormat(format)}
}

func (scanner *Scanner) Format() string { return scanner.format }

// Scan walks each root in the order provided and returns every regular
// file (or symlink to one) whose extension matches the scanners format,
// ignoring case. Within a root, matches are returned in lexical order.
//
// Roots which are missing or unreadable are recorded as warnings and skipped; an
// empty result is not an error.
func (scanner *Scanner) Scan(roots ...string) Result {
	result := Result{Matches: make([]Match, 0), Warnings: make([]Warning, 0)}
	seen := make(map[string]struct{}, len(roots))

	for _, root := range roots {
		root = filepath.Clean(root)
		if _, ok := seen[root]; ok {
			log.Emit(logger.DEBUG, "Ignoring duplicate input directory %s\n", root)
			continue
		}
		seen[root] = struct{}{}

		if err := checkRoot(root); err != nil {
			log.Emit(logger.WARNING, "Directory not found: %s\n", root)
			result.Warnings = append(result.Warnings, Warning{Path: root, Err: err})
			continue
		}

		before := len(result.Matches)
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Emit(logger.WARNING, "Unable to read %s: %v\n", path, err)
				result.Warnings = append(result.Warnings, Warning{Path: path, Err: err})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}

				return nil
			}

			if scanner.matches(path, d) {
				result.Matches = append(result.Matches, Match{Path: path, Root: root})
			}

			return nil
		})
		if walkErr != nil {
			result.Warnings = append(result.Warnings, Warning{Path: root, Err: walkErr})
		}

		log.Emit(logger.DEBUG, "Found %d %s files in %s\n", len(result.Matches)-before, scanner.format, root)
	}

	return result
}

func (scanner *Scanner) matches(path string, d fs.DirEntry) bool {
	if d.IsDir() {
		return false
	}

	if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(d.Name()), "."), scanner.format) {
		return false
	}

	if d.Type().IsRegular() {
		return true
	}

	if d.Type()&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		return err == nil && info.Mode().IsRegular()
	}

	return false
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrMissingRoot
		}

		return fmt.Errorf("%w: %v", ErrMissingRoot, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: not a directory", ErrMissingRoot)
	}

	return nil
}
