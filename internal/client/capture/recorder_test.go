package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/roomcast-live/roomcast/internal/model"
)

// scriptedSource returns one payload per call, then empty slices.
type scriptedSource struct {
	mu       sync.Mutex
	payloads [][]byte
	calls    int
	err      error
}

func (s *scriptedSource) Slice(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.payloads) == 0 {
		return nil, nil
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return p, nil
}

type fakeSink struct {
	mu        sync.Mutex
	seqs      []int64
	chunks    [][]byte
	failSeqs  map[int64]bool
	completed int
}

func (s *fakeSink) UploadChunk(ctx context.Context, seq int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSeqs[seq] {
		return errors.New("simulated upload failure")
	}
	s.seqs = append(s.seqs, seq)
	s.chunks = append(s.chunks, data)
	return nil
}

func (s *fakeSink) Complete(ctx context.Context) (model.CompleteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	return model.CompleteResponse{OK: true, Filename: "room1_alice_1.mp4"}, nil
}

func (s *fakeSink) uploaded() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seqs...)
}

func TestRecorderUploadsMonotonicSequence(t *testing.T) {
	source := &scriptedSource{payloads: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	sink := &fakeSink{}

	r := NewRecorder(source, sink, 5*time.Millisecond)
	r.Start()

	deadline := time.After(2 * time.Second)
	for len(sink.uploaded()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, uploaded %v", sink.uploaded())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	seqs := sink.uploaded()
	for i, seq := range seqs {
		if seq != int64(i) {
			t.Fatalf("seqs = %v, want 0..n in order", seqs)
		}
	}
	if sink.completed != 1 {
		t.Fatalf("completed %d times, want 1", sink.completed)
	}
}

func TestRecorderStopFlushesFinalFragment(t *testing.T) {
	source := &scriptedSource{payloads: [][]byte{[]byte("tail")}}
	sink := &fakeSink{}

	// interval far beyond the test duration so only Stop can flush
	r := NewRecorder(source, sink, time.Hour)
	r.Start()
	time.Sleep(10 * time.Millisecond)

	resp, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !resp.OK {
		t.Fatalf("unexpected response: %+v", resp)
	}

	seqs := sink.uploaded()
	if len(seqs) != 1 || seqs[0] != 0 {
		t.Fatalf("seqs = %v, want [0]", seqs)
	}
	if string(sink.chunks[0]) != "tail" {
		t.Fatalf("flushed chunk = %q, want tail", sink.chunks[0])
	}
}

func TestRecorderFailedUploadIsNotRetried(t *testing.T) {
	source := &scriptedSource{payloads: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	sink := &fakeSink{failSeqs: map[int64]bool{1: true}}

	r := NewRecorder(source, sink, 5*time.Millisecond)
	r.Start()

	deadline := time.After(2 * time.Second)
	for len(sink.uploaded()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out, uploaded %v", sink.uploaded())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	seqs := sink.uploaded()
	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 2 {
		t.Fatalf("seqs = %v, want [0 2] with seq 1 lost", seqs)
	}
}

func TestRecorderEmptySliceConsumesNoSeq(t *testing.T) {
	source := &scriptedSource{}
	sink := &fakeSink{}

	r := NewRecorder(source, sink, 5*time.Millisecond)
	r.Start()
	time.Sleep(50 * time.Millisecond)
	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := sink.uploaded(); len(got) != 0 {
		t.Fatalf("uploaded %v from an empty source", got)
	}
}

func TestRecorderStopTwice(t *testing.T) {
	source := &scriptedSource{}
	sink := &fakeSink{}

	r := NewRecorder(source, sink, time.Hour)
	r.Start()

	if _, err := r.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if _, err := r.Stop(context.Background()); err == nil {
		t.Fatal("second Stop succeeded, want error")
	}
	if sink.completed != 1 {
		t.Fatalf("completed %d times, want 1", sink.completed)
	}
}

func TestUploaderSendsMultipartForm(t *testing.T) {
	var gotRoom, gotUser, gotSeq string
	var gotChunk []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload-chunk" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotRoom = r.FormValue("roomId")
		gotUser = r.FormValue("userId")
		gotSeq = r.FormValue("seq")
		file, _, err := r.FormFile("chunk")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			gotChunk, _ = io.ReadAll(file)
			file.Close()
		}
		fmt.Fprint(w, `{"ok":true,"seq":7}`)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, "room1", "alice")
	if err := u.UploadChunk(context.Background(), 7, []byte("webm-bytes")); err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}

	if gotRoom != "room1" || gotUser != "alice" || gotSeq != "7" {
		t.Fatalf("form fields = %q/%q/%q", gotRoom, gotUser, gotSeq)
	}
	if string(gotChunk) != "webm-bytes" {
		t.Fatalf("chunk = %q", gotChunk)
	}
}

func TestUploaderRejectedChunkIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"error":"invalid request"}`)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, "room1", "alice")
	if err := u.UploadChunk(context.Background(), 0, []byte("x")); err == nil {
		t.Fatal("rejected upload reported success")
	}
}

func TestUploaderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recording/complete" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"ok":true,"filename":"room1_alice_99.mp4","downloadUrl":"/download/room1_alice_99.mp4"}`)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, "room1", "alice")
	resp, err := u.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Filename != "room1_alice_99.mp4" {
		t.Fatalf("filename = %q", resp.Filename)
	}
}

func TestUploaderCompleteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"error":"no chunks found"}`)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, "room1", "alice")
	if _, err := u.Complete(context.Background()); err == nil {
		t.Fatal("failed stitch reported success")
	}
}
