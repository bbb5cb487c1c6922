package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/roomcast-live/roomcast/internal/model"
)

// ChunkSink receives sliced media fragments. It is satisfied by
// Uploader and by fakes in tests.
type ChunkSink interface {
	UploadChunk(ctx context.Context, seq int64, data []byte) error
	Complete(ctx context.Context) (model.CompleteResponse, error)
}

// Uploader ships fragments to the recording endpoints over HTTP.
type Uploader struct {
	baseURL string
	roomID  string
	userID  string
	client  *http.Client
}

// NewUploader creates an uploader for one (room, participant) pair.
// baseURL is the server root, e.g. http://host:3001.
func NewUploader(baseURL, roomID, userID string) *Uploader {
	return &Uploader{
		baseURL: baseURL,
		roomID:  roomID,
		userID:  userID,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadChunk posts one fragment as multipart form data.
func (u *Uploader) UploadChunk(ctx context.Context, seq int64, data []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("roomId", u.roomID)
	w.WriteField("userId", u.userID)
	w.WriteField("seq", strconv.FormatInt(seq, 10))
	w.WriteField("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	fw, err := w.CreateFormFile("chunk", fmt.Sprintf("chunk_%06d.webm", seq))
	if err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload-chunk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Complete asks the server to stitch everything uploaded so far.
func (u *Uploader) Complete(ctx context.Context) (model.CompleteResponse, error) {
	payload, err := json.Marshal(model.CompleteRequest{RoomID: u.roomID, UserID: u.userID})
	if err != nil {
		return model.CompleteResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.baseURL+"/recording/complete", bytes.NewReader(payload))
	if err != nil {
		return model.CompleteResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return model.CompleteResponse{}, fmt.Errorf("complete request failed: %w", err)
	}
	defer resp.Body.Close()

	var result model.CompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.CompleteResponse{}, fmt.Errorf("malformed complete response: %w", err)
	}
	if !result.OK {
		return result, fmt.Errorf("stitch failed: %s", result.Error)
	}
	return result, nil
}
