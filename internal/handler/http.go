package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/roomcast-live/roomcast/internal/config"
	"github.com/roomcast-live/roomcast/internal/model"
	"github.com/roomcast-live/roomcast/internal/recording"
	"github.com/roomcast-live/roomcast/internal/registry"
	"github.com/roomcast-live/roomcast/pkg/util"
)

// HTTPHandler handles the recording HTTP surface
type HTTPHandler struct {
	cfg       *config.Config
	pipeline  *recording.Pipeline
	registry  *registry.Registry
	validate  *validator.Validate
	startedAt time.Time
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(cfg *config.Config, pipeline *recording.Pipeline, reg *registry.Registry) *HTTPHandler {
	return &HTTPHandler{
		cfg:       cfg,
		pipeline:  pipeline,
		registry:  reg,
		validate:  validator.New(),
		startedAt: time.Now(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *HTTPHandler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/upload-chunk", h.handleUploadChunk).Methods("POST")
	r.HandleFunc("/recording/complete", h.handleComplete).Methods("POST")
	r.HandleFunc("/download/{filename}", h.handleDownload).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/status", h.handleStatus).Methods("GET")
}

// handleUploadChunk stores one uploaded recording fragment
func (h *HTTPHandler) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.HTTP.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.cfg.HTTP.MaxUploadBytes); err != nil {
		h.writeUploadError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	roomID := r.FormValue("roomId")
	userID := r.FormValue("userId")

	seq, err := strconv.ParseInt(r.FormValue("seq"), 10, 64)
	if err != nil {
		h.writeUploadError(w, http.StatusBadRequest, "seq must be an integer")
		return
	}

	// Timestamp is informational; a missing one is tolerated
	var timestamp time.Time
	if ms, err := strconv.ParseInt(r.FormValue("timestamp"), 10, 64); err == nil {
		timestamp = time.UnixMilli(ms)
	} else {
		timestamp = time.Now()
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		h.writeUploadError(w, http.StatusBadRequest, "chunk file required")
		return
	}
	defer file.Close()

	if err := h.pipeline.Ingest(r.Context(), roomID, userID, seq, timestamp, file); err != nil {
		log.Printf("upload-chunk error: %v", err)
		status, msg := errorStatus(err)
		h.writeUploadError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, model.UploadChunkResponse{OK: true, Seq: seq})
}

// handleComplete stitches a finished recording and reports the artifact
func (h *HTTPHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req model.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeCompleteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.writeCompleteError(w, http.StatusBadRequest, "roomId and userId required")
		return
	}

	filename, err := h.pipeline.Complete(r.Context(), req.RoomID, req.UserID)
	if err != nil {
		log.Printf("recording/complete error for %s/%s: %v", req.RoomID, req.UserID, err)
		status, msg := errorStatus(err)
		h.writeCompleteError(w, status, msg)
		return
	}

	h.writeJSON(w, http.StatusOK, model.CompleteResponse{
		OK:          true,
		Filename:    filename,
		DownloadURL: "/download/" + filename,
	})
}

// handleDownload streams a finished artifact
func (h *HTTPHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	path, err := h.pipeline.Fetch(filename)
	if err != nil {
		http.Error(w, "File not found or processing not complete.", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

// handleHealth handles health check requests
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus reports live counts and storage footprint for operators
func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	chunkBytes, err := util.GetDirSize(h.cfg.Recording.ChunksDir)
	if err != nil {
		chunkBytes = -1
	}
	artifactBytes, err := util.GetDirSize(h.cfg.Recording.ArtifactsDir)
	if err != nil {
		artifactBytes = -1
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":       h.cfg.Service.Name,
		"environment":   h.cfg.Service.Environment,
		"uptime":        time.Since(h.startedAt).String(),
		"rooms":         h.registry.RoomCount(),
		"participants":  h.registry.ParticipantCount(),
		"chunkBytes":    chunkBytes,
		"artifactBytes": artifactBytes,
	})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (h *HTTPHandler) writeUploadError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, model.UploadChunkResponse{OK: false, Error: msg})
}

func (h *HTTPHandler) writeCompleteError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, model.CompleteResponse{OK: false, Error: msg})
}

// errorStatus maps pipeline errors onto HTTP statuses
func errorStatus(err error) (int, string) {
	var apiErr model.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Details != "" {
			msg = apiErr.Details
		}
		return apiErr.Status, msg
	}
	return http.StatusInternalServerError, "internal server error"
}
