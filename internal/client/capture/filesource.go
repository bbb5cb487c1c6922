package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

const defaultSliceBytes = 256 * 1024

// FileSource feeds a pre-encoded media file through the recorder in
// fixed-size pieces, standing in for a live encoder. After the file is
// exhausted every Slice returns empty.
type FileSource struct {
	mu         sync.Mutex
	file       *os.File
	sliceBytes int
	exhausted  bool
}

// NewFileSource opens the media file at path. sliceBytes caps each
// fragment; zero or negative uses a default.
func NewFileSource(path string, sliceBytes int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	if sliceBytes <= 0 {
		sliceBytes = defaultSliceBytes
	}
	return &FileSource{file: f, sliceBytes: sliceBytes}, nil
}

// Slice returns the next piece of the file.
func (s *FileSource) Slice(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return nil, nil
	}

	buf := make([]byte, s.sliceBytes)
	n, err := io.ReadFull(s.file, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.exhausted = true
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return buf[:n], nil
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
