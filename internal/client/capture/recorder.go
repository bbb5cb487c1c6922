package capture

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/roomcast-live/roomcast/internal/model"
)

// DefaultInterval is the slicing period when none is configured.
const DefaultInterval = 3 * time.Second

// Source hands out the media buffered since the previous call. An
// empty slice means nothing was captured in the window; that slice is
// skipped without consuming a sequence number.
type Source interface {
	Slice(ctx context.Context) ([]byte, error)
}

// Recorder slices a media source on a fixed interval and pushes each
// fragment to the sink. Sequence numbers are monotonic from zero; a
// failed upload is logged and its fragment dropped, never retried, so
// a slow network cannot stall capture.
type Recorder struct {
	source   Source
	sink     ChunkSink
	interval time.Duration

	seq      int64
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRecorder creates a recorder. A non-positive interval falls back
// to DefaultInterval.
func NewRecorder(source Source, sink ChunkSink, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Recorder{
		source:   source,
		sink:     sink,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins slicing. It returns immediately; capture runs until
// Stop is called.
func (r *Recorder) Start() {
	go r.run()
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.captureSlice()
		case <-r.stopChan:
			return
		}
	}
}

// captureSlice cuts one fragment and ships it.
func (r *Recorder) captureSlice() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval*2)
	defer cancel()

	data, err := r.source.Slice(ctx)
	if err != nil {
		log.Printf("Failed to slice media source: %v", err)
		return
	}
	if len(data) == 0 {
		return
	}

	seq := r.seq
	r.seq++
	if err := r.sink.UploadChunk(ctx, seq, data); err != nil {
		log.Printf("Failed to upload chunk %d: %v", seq, err)
	}
}

// Stop halts the ticker, flushes the final partial fragment and asks
// the server to stitch. Calling Stop more than once is safe; only the
// first call does the work.
func (r *Recorder) Stop(ctx context.Context) (model.CompleteResponse, error) {
	var resp model.CompleteResponse
	err := fmt.Errorf("recorder already stopped")

	r.stopOnce.Do(func() {
		close(r.stopChan)
		<-r.done

		// flush whatever the source buffered since the last tick
		r.captureSlice()

		resp, err = r.sink.Complete(ctx)
	})
	return resp, err
}
