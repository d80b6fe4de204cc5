package scanner

import (
	"context"
	"path/filepath"
	"strings"
)

// ScannedFile is the spec.md §4.I view of a discovered file: just enough to
// queue it for reading and chunking.
type ScannedFile struct {
	Path         string // relative to project root
	RelativePath string // same as Path; kept for call-site clarity
	Size         int64
	ModTime      int64 // unix seconds
	Language     string
}

// Report is the aggregate result of a full project scan.
type Report struct {
	Files        []ScannedFile
	TotalSize    int64
	SkippedCount int
}

// ReportMaxFileSize is spec.md §4.I's default size ceiling (1 MiB), distinct
// from DefaultMaxFileSize (10MB) which the underlying Scan/ScanSubtree API
// inherited from the teacher's indexer. ScanForIndexing applies the tighter
// spec default unless the caller overrides MaxFileSize.
const ReportMaxFileSize = 1024 * 1024

// ScanForIndexing runs a full scan and folds the streamed results into a
// single Report, applying the additional spec.md §4.I filters the
// channel-based Scan API doesn't: empty files, unknown extensions, and
// hidden directories (anything with a "." path segment other than the
// project root itself) are dropped, and progress fires every 100 files
// examined (including ones ultimately skipped).
func (s *Scanner) ScanForIndexing(ctx context.Context, opts *ScanOptions, onProgress func(scanned int)) (*Report, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = ReportMaxFileSize
	}

	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	examined := 0
	for res := range results {
		examined++
		if onProgress != nil && examined%100 == 0 {
			onProgress(examined)
		}
		if res.Error != nil {
			report.SkippedCount++
			continue
		}
		f := res.File
		if f == nil || f.Size == 0 {
			report.SkippedCount++
			continue
		}
		if f.Size > opts.MaxFileSize {
			report.SkippedCount++
			continue
		}
		if isHiddenPath(f.Path) {
			report.SkippedCount++
			continue
		}
		if f.Language == "" {
			report.SkippedCount++
			continue
		}

		report.Files = append(report.Files, ScannedFile{
			Path:         f.Path,
			RelativePath: f.Path,
			Size:         f.Size,
			ModTime:      f.ModTime.Unix(),
			Language:     f.Language,
		})
		report.TotalSize += f.Size
	}
	if onProgress != nil && examined%100 != 0 {
		onProgress(examined)
	}

	return report, nil
}

// isHiddenPath reports whether any path segment (other than the final
// component, which shouldExcludeFile's sensitive-pattern check already
// covers for dotfiles like .env) starts with a dot — i.e. the file lives
// inside a hidden directory such as .github or .vscode. .gitignore itself
// is a file, not a directory, so RespectGitignore handling is unaffected.
func isHiddenPath(relPath string) bool {
	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
