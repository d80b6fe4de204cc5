package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanForIndexingSkipsEmptyHiddenAndUnknownFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("no extension, no language"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".github"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".github", "workflow.go"), []byte("package ci\n"), 0o644))

	s, err := New()
	require.NoError(t, err)

	report, err := s.ScanForIndexing(context.Background(), &ScanOptions{RootDir: root}, nil)
	require.NoError(t, err)

	require.Len(t, report.Files, 1)
	assert.Equal(t, "main.go", report.Files[0].Path)
	assert.Equal(t, "go", report.Files[0].Language)
	assert.GreaterOrEqual(t, report.SkippedCount, 2)
}

func TestScanForIndexingAppliesOneMebibyteDefault(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, ReportMaxFileSize+1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "huge.go"), big, 0o644))

	s, err := New()
	require.NoError(t, err)

	report, err := s.ScanForIndexing(context.Background(), &ScanOptions{RootDir: root}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	assert.Equal(t, 1, report.SkippedCount)
}

func TestScanForIndexingReportsProgress(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 150; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "f"+string(rune('a'+i%26))+string(rune('0'+i/26))+".go"), []byte("package main\n"), 0o644))
	}

	s, err := New()
	require.NoError(t, err)

	var progressCalls []int
	_, err = s.ScanForIndexing(context.Background(), &ScanOptions{RootDir: root}, func(scanned int) {
		progressCalls = append(progressCalls, scanned)
	})
	require.NoError(t, err)
	require.NotEmpty(t, progressCalls)
	assert.Equal(t, 100, progressCalls[0])
}
