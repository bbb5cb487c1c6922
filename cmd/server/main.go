package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/roomcast-live/roomcast/internal/config"
	"github.com/roomcast-live/roomcast/internal/handler"
	"github.com/roomcast-live/roomcast/internal/hub"
	"github.com/roomcast-live/roomcast/internal/metrics"
	"github.com/roomcast-live/roomcast/internal/recording"
	"github.com/roomcast-live/roomcast/internal/registry"
	"github.com/roomcast-live/roomcast/internal/relay"
	"github.com/roomcast-live/roomcast/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	log.Println("Starting roomcast server")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create metrics collector
	collector := metrics.NewPrometheusCollector()

	// Create room registry and signaling hub
	reg := registry.New()
	signalingHub := hub.New(cfg.WebSocket, nil)

	// Create relay service and bind it into the hub
	relayService := relay.New(reg, signalingHub, collector)
	signalingHub.SetHandler(relayService)
	go signalingHub.Run()

	// Create recording pipeline
	store, err := recording.NewStore(cfg.Recording.ChunksDir)
	if err != nil {
		log.Fatalf("Failed to create chunk store: %v", err)
	}
	stitcher := &recording.FFmpegStitcher{Binary: cfg.Recording.FFmpegPath}
	if err := stitcher.Check(); err != nil {
		log.Printf("ffmpeg not found, stitching will fail: %v", err)
	}
	pipeline, err := recording.NewPipeline(cfg.Recording, store, stitcher, collector)
	if err != nil {
		log.Fatalf("Failed to create recording pipeline: %v", err)
	}
	pipeline.StartJanitor()

	// Create handlers
	wsHandler := handler.NewWebSocketHandler(cfg.WebSocket, signalingHub, relayService)
	httpHandler := handler.NewHTTPHandler(cfg, pipeline, reg)

	// Create HTTP router
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	router := newRouter(cfg, collector, wsHandler, httpHandler, rateLimiter)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Close signaling connections
	signalingHub.Close()

	// Stop the recording janitor and the rate limiter
	pipeline.Stop()
	rateLimiter.Close()

	log.Println("Server shutdown complete")
}

// newRouter assembles the full serving surface: signaling socket,
// recording endpoints, metrics and the middleware chain.
func newRouter(cfg *config.Config, collector metrics.Collector, wsHandler *handler.WebSocketHandler, httpHandler *handler.HTTPHandler, rateLimiter *middleware.RateLimiter) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc(cfg.WebSocket.Path, wsHandler.HandleConnection)
	router.Handle("/metrics", collector.Handler())
	httpHandler.SetupRoutes(router)

	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.Metrics)

	if cfg.RateLimit.Enabled {
		router.Use(rateLimiter.Middleware)
	}

	return router
}
