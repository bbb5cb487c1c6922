package model

// UploadChunkResponse is the reply to POST /upload-chunk. Seq is
// echoed unconditionally; zero is a valid sequence number.
type UploadChunkResponse struct {
	OK    bool   `json:"ok"`
	Seq   int64  `json:"seq"`
	Error string `json:"error,omitempty"`
}

// CompleteRequest is the body of POST /recording/complete
type CompleteRequest struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// CompleteResponse is the reply to POST /recording/complete
type CompleteResponse struct {
	OK          bool   `json:"ok"`
	Filename    string `json:"filename,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}
