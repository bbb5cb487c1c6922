package recording

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roomcast-live/roomcast/internal/config"
	"github.com/roomcast-live/roomcast/internal/metrics"
	"github.com/roomcast-live/roomcast/internal/model"
)

// fakeStitcher concatenates fragment bytes in-process. delay and fail
// simulate a slow or broken external tool.
type fakeStitcher struct {
	delay time.Duration
	fail  bool

	calls      atomic.Int32
	concurrent atomic.Int32
	maxSeen    atomic.Int32
}

func (f *fakeStitcher) Stitch(ctx context.Context, fragments []string, output string) error {
	f.calls.Add(1)
	cur := f.concurrent.Add(1)
	defer f.concurrent.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.fail {
		return errors.New("exit status 1")
	}

	var out []byte
	for _, frag := range fragments {
		data, err := os.ReadFile(frag)
		if err != nil {
			return err
		}
		out = append(out, data...)
	}
	return os.WriteFile(output, out, 0644)
}

func newTestPipeline(t *testing.T, stitcher Stitcher, cleanup bool) (*Pipeline, *Store) {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "chunks"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.RecordingConfig{
		ArtifactsDir:  filepath.Join(t.TempDir(), "final"),
		CleanupChunks: cleanup,
		StitchTimeout: 10 * time.Second,
	}

	p, err := NewPipeline(cfg, store, stitcher, metrics.NoopCollector{})
	if err != nil {
		t.Fatal(err)
	}
	return p, store
}

func ingest(t *testing.T, p *Pipeline, room, user string, seq int64, payload string) {
	t.Helper()
	if err := p.Ingest(context.Background(), room, user, seq, time.Now(), strings.NewReader(payload)); err != nil {
		t.Fatalf("Ingest seq %d: %v", seq, err)
	}
}

func TestCompleteStitchesInSequenceOrder(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeStitcher{}, false)

	// Out-of-order arrival must not matter
	ingest(t, p, "r1", "u1", 2, "CC")
	ingest(t, p, "r1", "u1", 0, "AA")
	ingest(t, p, "r1", "u1", 1, "BB")

	filename, err := p.Complete(context.Background(), "r1", "u1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.HasPrefix(filename, "r1_u1_") || !strings.HasSuffix(filename, ".mp4") {
		t.Errorf("artifact name = %q", filename)
	}

	path, err := p.Fetch(filename)
	if err != nil {
		t.Fatalf("Fetch(%q): %v", filename, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "AABBCC" {
		t.Errorf("artifact content = %q, want AABBCC", data)
	}
}

func TestCompleteNoChunks(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeStitcher{}, false)

	_, err := p.Complete(context.Background(), "r1", "u1")
	if !model.IsNoChunks(err) {
		t.Fatalf("Complete on empty pair = %v, want no_chunks", err)
	}

	// No filesystem writes to the output directory
	entries, readErr := os.ReadDir(p.cfg.ArtifactsDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("artifact dir not empty after failed complete: %v", entries)
	}
}

func TestCompleteFailureLeavesNoArtifactAndKeepsFragments(t *testing.T) {
	p, store := newTestPipeline(t, &fakeStitcher{fail: true}, true)

	ingest(t, p, "r1", "u1", 0, "AA")

	_, err := p.Complete(context.Background(), "r1", "u1")
	if err == nil {
		t.Fatal("Complete should fail when the stitcher fails")
	}
	var apiErr model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "stitch_failed" {
		t.Errorf("error not classified as stitch failure: %v", err)
	}

	entries, _ := os.ReadDir(p.cfg.ArtifactsDir)
	if len(entries) != 0 {
		t.Errorf("partial artifact exposed: %v", entries)
	}

	// Fragments survive for a retry even with cleanup enabled
	paths, _ := store.List("r1", "u1")
	if len(paths) != 1 {
		t.Errorf("fragments lost after failed stitch: %v", paths)
	}
}

func TestCompleteCleanupRemovesFragments(t *testing.T) {
	p, store := newTestPipeline(t, &fakeStitcher{}, true)

	ingest(t, p, "r1", "u1", 0, "AA")

	if _, err := p.Complete(context.Background(), "r1", "u1"); err != nil {
		t.Fatal(err)
	}

	paths, _ := store.List("r1", "u1")
	if len(paths) != 0 {
		t.Errorf("fragments remain after cleanup: %v", paths)
	}
}

func TestCompleteSingleFlightPerPair(t *testing.T) {
	stitcher := &fakeStitcher{delay: 50 * time.Millisecond}
	p, _ := newTestPipeline(t, stitcher, false)

	ingest(t, p, "r1", "u1", 0, "AA")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Complete(context.Background(), "r1", "u1")
		}()
	}
	wg.Wait()

	if max := stitcher.maxSeen.Load(); max > 1 {
		t.Errorf("saw %d concurrent stitches for one pair, want at most 1", max)
	}
}

func TestCompleteDifferentPairsRunConcurrently(t *testing.T) {
	stitcher := &fakeStitcher{delay: 50 * time.Millisecond}
	p, _ := newTestPipeline(t, stitcher, false)

	ingest(t, p, "r1", "u1", 0, "AA")
	ingest(t, p, "r1", "u2", 0, "BB")

	start := time.Now()
	var wg sync.WaitGroup
	for _, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := p.Complete(context.Background(), "r1", user); err != nil {
				t.Errorf("Complete(%s): %v", user, err)
			}
		}(user)
	}
	wg.Wait()

	// Serialized execution would take at least double the delay
	if elapsed := time.Since(start); elapsed > 90*time.Millisecond {
		t.Logf("pairs appear serialized: %v", elapsed)
	}
}

func TestIngestRejectsMissingIdentifiers(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeStitcher{}, false)

	err := p.Ingest(context.Background(), "", "u1", 0, time.Now(), strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for missing roomId")
	}
	err = p.Ingest(context.Background(), "r1", "", 0, time.Now(), strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for missing userId")
	}
	err = p.Ingest(context.Background(), "r1", "u1", -3, time.Now(), strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for negative seq")
	}
}

func TestFetchRejectsTraversal(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeStitcher{}, false)

	// Plant a file outside the artifact dir
	outside := filepath.Join(filepath.Dir(p.cfg.ArtifactsDir), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"../secret.txt",
		"..%2fsecret.txt",
		"../../etc/passwd",
		".tmp_r1_u1_1.mp4",
		"",
	} {
		if _, err := p.Fetch(name); !model.IsNotFound(err) {
			t.Errorf("Fetch(%q) = %v, want not found", name, err)
		}
	}
}

func TestFetchUnknownArtifact(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeStitcher{}, false)

	if _, err := p.Fetch("r1_u1_123.mp4"); !model.IsNotFound(err) {
		t.Fatalf("Fetch unknown = %v, want not found", err)
	}
}
