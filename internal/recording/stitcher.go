package recording

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Stitcher concatenates an ordered list of fragment files into one
// continuous output file, or fails leaving no output behind. The
// concrete tool hides behind this interface so the pipeline can be
// tested without it.
type Stitcher interface {
	Stitch(ctx context.Context, fragments []string, output string) error
}

// FFmpegStitcher shells out to ffmpeg's concat demuxer with stream
// copy: fragments are joined byte-stream-compatible, never re-encoded.
type FFmpegStitcher struct {
	// Binary is the ffmpeg executable; "ffmpeg" on PATH when empty
	Binary string
}

// Check verifies the ffmpeg binary can be found
func (s *FFmpegStitcher) Check() error {
	if _, err := exec.LookPath(s.binary()); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}

func (s *FFmpegStitcher) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "ffmpeg"
}

// Stitch runs one concat invocation. On a non-zero exit the output file
// is removed so callers never observe a partial artifact.
func (s *FFmpegStitcher) Stitch(ctx context.Context, fragments []string, output string) error {
	if len(fragments) == 0 {
		return fmt.Errorf("no fragments to stitch")
	}

	listPath, err := writeConcatList(fragments)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-y", output}
	cmd := exec.CommandContext(ctx, s.binary(), args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(output)
		return fmt.Errorf("ffmpeg concat failed: %w: %s", err, lastLine(stderr.String()))
	}

	return nil
}

// writeConcatList writes the ffmpeg concat demuxer input file next to
// the fragments. Single quotes in paths are escaped the way the demuxer
// expects.
func writeConcatList(fragments []string) (string, error) {
	var b strings.Builder
	for _, path := range fragments {
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	listPath := filepath.Join(filepath.Dir(fragments[0]), "files.txt")
	if err := os.WriteFile(listPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	return listPath, nil
}

// lastLine extracts the final non-empty line of ffmpeg's stderr, which
// is where it puts the actual failure reason
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
