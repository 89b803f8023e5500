// Package discovery implements the filesystem PII scan: it walks a user's
// local directories looking for PII left in plain files, independent of
// anything a broker has published about them.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/infiniteinsight/spectral/internal/piifilter"
)

// MaxFileSize bounds how large a file scan_file will read into memory.
const MaxFileSize = 100 * 1024 * 1024

// MaxDepth bounds how many directory levels below a scan root are walked.
const MaxDepth = 10

// scannableExtensions lists the file extensions treated as readable text;
// anything else (binaries, archives, images) is skipped without opening it.
var scannableExtensions = map[string]bool{
	".txt":  true,
	".csv":  true,
	".json": true,
	".md":   true,
	".log":  true,
}

func isScannable(path string) bool {
	return scannableExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileResult is one scanned file that contained at least one PII match.
type FileResult struct {
	Path    string
	Kinds   []piifilter.Kind
	Matches int
}

// ScanFile reads and scans a single file, returning nil if it is not
// scannable, too large, unreadable, or contains no PII.
func ScanFile(filter *piifilter.Filter, path string) (*FileResult, error) {
	if !isScannable(path) {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}
	if info.Size() > MaxFileSize {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}

	result, err := filter.Filter(string(content))
	if err != nil {
		return nil, nil
	}
	if !result.HasPII() {
		return nil, nil
	}

	kinds := make([]piifilter.Kind, 0, len(result.Detections))
	seen := make(map[piifilter.Kind]bool)
	for _, d := range result.Detections {
		if !seen[d.Kind] {
			seen[d.Kind] = true
			kinds = append(kinds, d.Kind)
		}
	}
	return &FileResult{Path: path, Kinds: kinds, Matches: len(result.Detections)}, nil
}

// ScanDirectory walks root up to MaxDepth levels deep, scanning every
// scannable file it finds. It does not follow symlinks. A walk error on
// one entry is skipped rather than aborting the whole scan, since a single
// unreadable file or permission-denied directory should not lose findings
// already collected from the rest of the tree.
func ScanDirectory(ctx context.Context, root string) ([]FileResult, error) {
	var results []FileResult
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
			if depth > MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		filter := piifilter.New()
		result, scanErr := ScanFile(filter, path)
		if scanErr != nil || result == nil {
			return nil
		}
		results = append(results, *result)
		return nil
	})
	if err != nil && err != context.Canceled {
		return results, err
	}
	return results, nil
}

// ScanDirectories scans every root in dirs that exists, skipping ones that
// don't (e.g. a profile with no Desktop folder), and concatenates findings.
func ScanDirectories(ctx context.Context, dirs []string) ([]FileResult, error) {
	var all []FileResult
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		results, err := ScanDirectory(ctx, dir)
		if err != nil {
			return all, err
		}
		all = append(all, results...)
	}
	return all, nil
}

// DefaultUserDirectories returns the common directories a filesystem scan
// targets: Documents, Downloads, Desktop under the user's home directory.
func DefaultUserDirectories() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Documents"),
		filepath.Join(home, "Downloads"),
		filepath.Join(home, "Desktop"),
	}
}
