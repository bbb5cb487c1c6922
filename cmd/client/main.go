package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/roomcast-live/roomcast/internal/client/capture"
	"github.com/roomcast-live/roomcast/internal/client/orchestrator"
	"github.com/roomcast-live/roomcast/internal/client/signaling"
)

func main() {
	serverURL := flag.String("server", "http://localhost:3001", "Server base URL")
	roomID := flag.String("room", "", "Room to join")
	name := flag.String("name", "", "Display name")
	record := flag.Bool("record", false, "Upload recording chunks")
	mediaPath := flag.String("media", "", "Pre-encoded media file fed to the recorder")
	interval := flag.Duration("interval", capture.DefaultInterval, "Chunk slicing interval")
	stunServer := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server, empty to disable")
	flag.Parse()

	if *roomID == "" {
		log.Fatal("-room is required")
	}
	if *name == "" {
		*name = "guest-" + uuid.New().String()[:8]
	}

	wsURL, err := signalingURL(*serverURL)
	if err != nil {
		log.Fatalf("Invalid server URL: %v", err)
	}

	// Local tracks advertised to every peer
	tracks, err := localTracks()
	if err != nil {
		log.Fatalf("Failed to create local tracks: %v", err)
	}

	var iceServers []string
	if *stunServer != "" {
		iceServers = append(iceServers, *stunServer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	sig, err := signaling.Dial(ctx, wsURL, nil)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", wsURL, err)
	}

	orch := orchestrator.New(sig, orchestrator.DefaultPeerFactory(iceServers), tracks)
	sig.SetHandler(orch)

	runErr := make(chan error, 1)
	go func() { runErr <- sig.Run() }()

	if err := sig.Join(*roomID, *name); err != nil {
		log.Fatalf("Failed to join room %s: %v", *roomID, err)
	}
	log.Printf("Joined room %s as %s", *roomID, *name)

	// Optional chunked recording
	var recorder *capture.Recorder
	if *record {
		if *mediaPath == "" {
			log.Fatal("-record requires -media")
		}
		source, err := capture.NewFileSource(*mediaPath, 0)
		if err != nil {
			log.Fatalf("Failed to open media source: %v", err)
		}
		defer source.Close()

		// Fragments are keyed by the connection identity, never the
		// display name; two participants sharing a name must not share
		// a recording
		socketID := waitForSocketID(sig, 10*time.Second)
		if socketID == "" {
			log.Fatal("No socket identity received from the server")
		}

		uploader := capture.NewUploader(strings.TrimRight(*serverURL, "/"), *roomID, socketID)
		recorder = capture.NewRecorder(source, uploader, *interval)
		recorder.Start()
		log.Printf("Recording started, slicing every %s", *interval)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Shutting down...")
	case err := <-runErr:
		if err != nil {
			log.Printf("Signaling connection lost: %v", err)
		}
	}

	if recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		resp, err := recorder.Stop(ctx)
		cancel()
		if err != nil {
			log.Printf("Failed to finish recording: %v", err)
		} else {
			log.Printf("Recording ready: %s%s", strings.TrimRight(*serverURL, "/"), resp.DownloadURL)
		}
	}

	orch.Close()
	sig.Close()
}

// waitForSocketID polls until the welcome message has delivered the
// connection identity or the timeout passes.
func waitForSocketID(sig *signaling.Client, timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if id := sig.SocketID(); id != "" {
			return id
		}
		time.Sleep(20 * time.Millisecond)
	}
	return ""
}

// signalingURL turns the server base URL into the websocket endpoint.
func signalingURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// localTracks builds the audio and video tracks offered to peers. The
// tracks carry whatever the application writes into them; creating
// them up front keeps renegotiation out of the join path.
func localTracks() ([]webrtc.TrackLocal, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "roomcast")
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "roomcast")
	if err != nil {
		return nil, err
	}
	return []webrtc.TrackLocal{video, audio}, nil
}
