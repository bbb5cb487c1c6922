package recording

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/roomcast-live/roomcast/internal/config"
	"github.com/roomcast-live/roomcast/internal/metrics"
	"github.com/roomcast-live/roomcast/internal/model"
	"github.com/roomcast-live/roomcast/pkg/util"
)

// Pipeline ingests recording fragments and stitches them into
// downloadable artifacts. Ingestion is lock-free (distinct sequence
// numbers write distinct files); completion is single-flight per
// (room, participant) pair.
type Pipeline struct {
	cfg      config.RecordingConfig
	store    *Store
	stitcher Stitcher
	metrics  metrics.Collector

	// Per-pair completion locks
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPipeline creates the pipeline and its artifact directory
func NewPipeline(cfg config.RecordingConfig, store *Store, stitcher Stitcher, m metrics.Collector) (*Pipeline, error) {
	if err := util.EnsureDirectoryExists(cfg.ArtifactsDir); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &Pipeline{
		cfg:      cfg,
		store:    store,
		stitcher: stitcher,
		metrics:  m,
		locks:    make(map[string]*sync.Mutex),
		stopChan: make(chan struct{}),
	}, nil
}

// Ingest validates and stores one uploaded fragment
func (p *Pipeline) Ingest(ctx context.Context, roomID, userID string, seq int64, timestamp time.Time, payload io.Reader) error {
	if roomID == "" || userID == "" {
		p.metrics.ChunkRejected(roomID, "missing_identifier")
		return model.ErrInvalidRequest.WithDetails("roomId and userId required")
	}
	if seq < 0 {
		p.metrics.ChunkRejected(roomID, "bad_sequence")
		return model.ErrInvalidRequest.WithDetails("seq must be non-negative")
	}

	path, err := p.store.Save(roomID, userID, seq, payload)
	if err != nil {
		p.metrics.ChunkRejected(roomID, "store_failed")
		return err
	}

	if info, err := os.Stat(path); err == nil {
		p.metrics.ChunkIngested(roomID, int(info.Size()))
	}

	return nil
}

// Complete stitches all stored fragments for a pair into one artifact
// and returns its filename. Concurrent calls for the same pair
// serialize; the second caller stitches again over whatever fragments
// remain (or fails with no chunks after a cleanup).
func (p *Pipeline) Complete(ctx context.Context, roomID, userID string) (string, error) {
	if roomID == "" || userID == "" {
		return "", model.ErrInvalidRequest.WithDetails("roomId and userId required")
	}

	safeRoom := util.SanitizeIdentifier(roomID)
	safeUser := util.SanitizeIdentifier(userID)

	lock := p.pairLock(safeRoom + "/" + safeUser)
	lock.Lock()
	defer lock.Unlock()

	fragments, err := p.store.List(roomID, userID)
	if err != nil {
		p.metrics.RecordingFailed(roomID, "list_failed")
		return "", err
	}
	if len(fragments) == 0 {
		p.metrics.RecordingFailed(roomID, "no_chunks")
		return "", model.ErrNoChunks
	}

	filename := fmt.Sprintf("%s_%s_%d.mp4", safeRoom, safeUser, time.Now().UnixMilli())
	finalPath := filepath.Join(p.cfg.ArtifactsDir, filename)

	// Stitch into a temp name first so a failed or half-finished run
	// never becomes fetchable
	tempPath := filepath.Join(p.cfg.ArtifactsDir, ".tmp_"+util.GenerateArtifactID()+".mp4")

	stitchCtx := ctx
	if p.cfg.StitchTimeout > 0 {
		var cancel context.CancelFunc
		stitchCtx, cancel = context.WithTimeout(ctx, p.cfg.StitchTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.stitcher.Stitch(stitchCtx, fragments, tempPath); err != nil {
		os.Remove(tempPath)
		p.metrics.RecordingFailed(roomID, "stitch_failed")
		return "", fmt.Errorf("%w: %s", model.ErrStitchFailed, err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		p.metrics.RecordingFailed(roomID, "rename_failed")
		return "", fmt.Errorf("%w: %s", model.ErrStitchFailed, err)
	}

	p.metrics.RecordingCompleted(roomID, len(fragments), time.Since(start))
	log.Printf("Stitched %d fragments for %s/%s into %s", len(fragments), roomID, userID, filename)

	if p.cfg.CleanupChunks {
		if err := p.store.Remove(roomID, userID); err != nil {
			log.Printf("Warning: failed to clean up fragments for %s/%s: %v", roomID, userID, err)
		}
	}

	return filename, nil
}

// Fetch resolves an artifact filename to its path inside the artifact
// directory. Traversal attempts resolve to nothing.
func (p *Pipeline) Fetch(filename string) (string, error) {
	safe := util.SanitizeFilename(filename)
	if safe == "" || safe != filename || strings.HasPrefix(safe, ".") {
		return "", model.ErrNotFound
	}

	path := filepath.Join(p.cfg.ArtifactsDir, safe)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", model.ErrNotFound
	}

	return path, nil
}

// StartJanitor launches the background sweep that garbage-collects
// fragment directories abandoned without a completion call. Disabled
// when the inactivity window is zero.
func (p *Pipeline) StartJanitor() {
	if p.cfg.AbandonedAfter <= 0 {
		return
	}

	interval := p.cfg.JanitorInterval
	if interval <= 0 {
		interval = time.Hour
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cutoff := time.Now().Add(-p.cfg.AbandonedAfter)
				if err := util.RemoveOldDirs(p.store.Root(), cutoff); err != nil {
					log.Printf("Janitor sweep failed: %v", err)
				}
			case <-p.stopChan:
				return
			}
		}
	}()
}

// Stop terminates the janitor
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

// pairLock returns the completion lock for a pair, creating it on
// first use
func (p *Pipeline) pairLock(key string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()

	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	return lock
}
