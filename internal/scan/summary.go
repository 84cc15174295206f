package scan

import (
	"os"
	"path/filepath"
)

// RootSummary describes the matching content found beneath a single root.
type RootSummary struct {
	Root   string
	Exists bool
	Files  int
	Bytes  int64
}

// Summarize reports, for each root, how many files match the scanners format
// and their combined size. Missing roots are included with Exists set to false.
func (scanner *Scanner) Summarize(roots ...string) []RootSummary {
	summaries := make([]RootSummary, 0, len(roots))
	for _, root := range roots {
		summary := RootSummary{Root: filepath.Clean(root)}
		if err := checkRoot(summary.Root); err != nil {
			summaries = append(summaries, summary)
			continue
		}

		summary.Exists = true
		for _, match := range scanner.Scan(summary.Root).Matches {
			summary.Files++
			if size, err := fileSize(match.Path); err == nil {
				summary.Bytes += size
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}
