package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JoeyEamigh/ccengram/internal/pipeline"
	"github.com/JoeyEamigh/ccengram/internal/scanner"
	"github.com/JoeyEamigh/ccengram/internal/store"
)

// InjectionMode selects how a Coordinator hands off watched changes
// (spec.md §4.K "Two injection modes").
type InjectionMode string

const (
	// ModeIndexer aggregates events and hands them off as a batched index
	// job via OnReindex once the gitignore/config debounce settles.
	ModeIndexer InjectionMode = "indexer"
	// ModePipeline injects PipelineFile values directly into a running
	// pipeline.Pipeline's reader stage for sub-200ms single-file latency;
	// deletes/renames bypass straight to the writer.
	ModePipeline InjectionMode = "pipeline"
)

// contentCacheMaxFiles and contentCacheMaxBytes bound the watcher's LRU
// content cache (spec.md §4.K: "1000 files, 512 KiB cap").
const (
	contentCacheMaxFiles = 1000
	contentCacheMaxBytes = 512 * 1024
)

// gitignoreDebounce is the separate, longer debounce for .gitignore edits
// (spec.md §4.K: "a separate callback (1s debounce)").
const gitignoreDebounce = time.Second

// Coordinator owns one project's watcher lifecycle: lock acquisition,
// debounced event consumption, the incremental content cache, and handoff
// into either the indexer or the pipeline (spec.md §4.K).
type Coordinator struct {
	db          store.Store
	projectID   string
	projectPath string
	projectHash string
	mode        InjectionMode

	watcher *HybridWatcher

	// Pipeline mode collaborators.
	pipeline  *pipeline.Pipeline
	filesOut  chan pipeline.PipelineFile
	writesOut chan pipeline.WriteOperation

	// Indexer mode collaborator: called with the paths that changed once
	// a batch has settled.
	OnReindex func(ctx context.Context, changed []string)
	// OnGitignoreChange fires when a .gitignore edit's content hash
	// actually differs from what was last seen, prompting a full re-scan
	// (spec.md §3 CodeIndexState.GitignoreHash; §4.K).
	OnGitignoreChange func(ctx context.Context)

	cache *lru.Cache[string, string]

	cacheMu        sync.Mutex
	cacheBytes     int
	gitignoreHash  string
	gitignoreTimer *time.Timer
	indexedFiles   int
}

// NewCoordinator builds a Coordinator for one project. In ModePipeline, p
// must be non-nil; NewCoordinator owns feeding p.Run via Files()/Writes().
func NewCoordinator(db store.Store, projectID, projectPath string, mode InjectionMode, p *pipeline.Pipeline) *Coordinator {
	cache, _ := lru.New[string, string](contentCacheMaxFiles)
	return &Coordinator{
		db:          db,
		projectID:   projectID,
		projectPath: projectPath,
		mode:        mode,
		pipeline:    p,
		filesOut:    make(chan pipeline.PipelineFile, 64),
		writesOut:   make(chan pipeline.WriteOperation, 64),
		cache:       cache,
	}
}

// Start acquires the project's single-writer lock, begins the hybrid
// watcher, and (in ModePipeline) starts the pipeline run against
// Files()/Writes(). It returns false without error if another process
// already holds the lock (spec.md §8 "Watcher singleton").
func (c *Coordinator) Start(ctx context.Context) (bool, error) {
	ok, hash, err := AcquireLock(ctx, c.db, c.projectPath)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	c.projectHash = hash

	if state, err := c.db.GetCodeIndexState(ctx, c.projectID); err == nil && state != nil {
		c.gitignoreHash = state.GitignoreHash
	}

	c.watcher, err = NewHybridWatcher(DefaultOptions())
	if err != nil {
		_ = ReleaseLock(ctx, c.db, c.projectHash)
		return false, err
	}

	if err := c.watcher.Start(ctx, c.projectPath); err != nil {
		_ = ReleaseLock(ctx, c.db, c.projectHash)
		return false, err
	}

	if c.mode == ModePipeline && c.pipeline != nil {
		go c.pipeline.Run(ctx, c.projectID, c.filesOut, c.writesOut, nil)
	}

	go c.consume(ctx)
	return true, nil
}

// Stop releases the watcher and its lock.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.watcher != nil {
		_ = c.watcher.Stop()
	}
	if c.filesOut != nil {
		close(c.filesOut)
	}
	if c.writesOut != nil {
		close(c.writesOut)
	}
	if c.projectHash != "" {
		return ReleaseLock(ctx, c.db, c.projectHash)
	}
	return nil
}

func (c *Coordinator) consume(ctx context.Context) {
	var batch []string
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			for _, ev := range events {
				c.handleEvent(ctx, ev)
				if ev.Operation != OpGitignoreChange && ev.Operation != OpConfigChange {
					batch = append(batch, ev.Path)
				}
			}
			if c.mode == ModeIndexer && c.OnReindex != nil && len(batch) > 0 {
				c.OnReindex(ctx, batch)
				batch = nil
			}
			c.touchActivity(ctx)
		}
	}
}

// handleEvent dispatches one coalesced event per spec.md §4.K's watched-
// file state machine: create→add, modify→diff against the content cache,
// delete/rename→gone, and gitignore edits through the separate debounce.
func (c *Coordinator) handleEvent(ctx context.Context, ev FileEvent) {
	switch ev.Operation {
	case OpGitignoreChange:
		c.scheduleGitignoreCheck(ctx, ev.Path)
		return
	case OpConfigChange:
		return
	case OpDelete:
		c.cache.Remove(ev.Path)
		if c.mode == ModePipeline {
			c.injectDelete(ev.Path)
		}
		return
	}

	absPath := filepath.Join(c.projectPath, ev.Path)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return
	}

	old, hadOld := c.cache.Get(ev.Path)
	c.storeInCache(ev.Path, string(content))

	if c.mode != ModePipeline {
		return
	}

	pf := pipeline.PipelineFile{
		Path:         absPath,
		RelativePath: ev.Path,
		Language:     scanner.DetectLanguage(ev.Path),
		ModTime:      ev.Timestamp,
	}
	if hadOld && ev.Operation == OpModify {
		pf.OldContent = &old
	}

	select {
	case c.filesOut <- pf:
	case <-ctx.Done():
	}
}

func (c *Coordinator) injectDelete(relPath string) {
	select {
	case c.writesOut <- pipeline.WriteOperation{Delete: true, Path: relPath, ProjectID: c.projectID}:
	default:
	}
}

// storeInCache enforces both the entry-count cap (via the underlying LRU)
// and the aggregate byte cap, evicting the oldest entries first.
func (c *Coordinator) storeInCache(path, content string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if old, ok := c.cache.Peek(path); ok {
		c.cacheBytes -= len(old)
	}
	c.cache.Add(path, content)
	c.cacheBytes += len(content)

	for c.cacheBytes > contentCacheMaxBytes && c.cache.Len() > 0 {
		oldestKey, oldestVal, ok := c.cache.GetOldest()
		if !ok {
			break
		}
		c.cache.Remove(oldestKey)
		c.cacheBytes -= len(oldestVal)
	}
}

// scheduleGitignoreCheck debounces a .gitignore edit by gitignoreDebounce
// and only fires OnGitignoreChange if the file's content hash actually
// changed (spec.md §4.K: "only when the gitignore content hash changes").
func (c *Coordinator) scheduleGitignoreCheck(ctx context.Context, relPath string) {
	c.cacheMu.Lock()
	if c.gitignoreTimer != nil {
		c.gitignoreTimer.Stop()
	}
	c.gitignoreTimer = time.AfterFunc(gitignoreDebounce, func() {
		c.checkGitignoreHash(ctx, relPath)
	})
	c.cacheMu.Unlock()
}

func (c *Coordinator) checkGitignoreHash(ctx context.Context, relPath string) {
	absPath := filepath.Join(c.projectPath, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return
	}
	sum := sha256.Sum256(content)
	newHash := hex.EncodeToString(sum[:])

	c.cacheMu.Lock()
	changed := newHash != c.gitignoreHash
	c.gitignoreHash = newHash
	c.cacheMu.Unlock()

	if !changed {
		return
	}

	indexedFiles := 0
	if existing, err := c.db.GetCodeIndexState(ctx, c.projectID); err == nil && existing != nil {
		indexedFiles = existing.IndexedFiles
	}
	if err := c.db.UpsertCodeIndexState(ctx, &store.CodeIndexState{
		ProjectID:     c.projectID,
		LastIndexedAt: time.Now(),
		IndexedFiles:  indexedFiles,
		GitignoreHash: newHash,
	}); err != nil {
		slog.Warn("watcher: failed persisting gitignore hash", slog.String("error", err.Error()))
	}

	if c.OnGitignoreChange != nil {
		c.OnGitignoreChange(ctx)
	}
}

func (c *Coordinator) touchActivity(ctx context.Context) {
	c.indexedFiles++
	if err := c.db.TouchWatcherLock(ctx, c.projectHash, c.indexedFiles); err != nil {
		slog.Warn("watcher: failed touching lock activity", slog.String("error", err.Error()))
	}
}
