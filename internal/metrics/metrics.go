package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines the interface for metrics collection
type Collector interface {
	// Participant metrics
	ParticipantConnected()
	ParticipantDisconnected()
	ParticipantError(errorType string)

	// Room metrics
	RoomCreated(roomID string)
	RoomDestroyed(roomID string)

	// Signaling metrics
	MessageReceived(messageType string, sizeBytes int)
	MessageRelayed(messageType string)
	MessageDropped(messageType, reason string)

	// Recording metrics
	ChunkIngested(roomID string, sizeBytes int)
	ChunkRejected(roomID, reason string)
	RecordingCompleted(roomID string, fragments int, duration time.Duration)
	RecordingFailed(roomID, reason string)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler
}

// PrometheusCollector implements the Collector interface using Prometheus
type PrometheusCollector struct {
	activeParticipants prometheus.Gauge
	participantErrors  *prometheus.CounterVec

	activeRooms    prometheus.Gauge
	roomsCreated   *prometheus.CounterVec
	roomsDestroyed *prometheus.CounterVec

	messagesReceived *prometheus.CounterVec
	messagesRelayed  *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	messageSize      *prometheus.HistogramVec

	chunksIngested      *prometheus.CounterVec
	chunksRejected      *prometheus.CounterVec
	chunkSize           *prometheus.HistogramVec
	recordingsCompleted *prometheus.CounterVec
	recordingsFailed    *prometheus.CounterVec
	stitchDuration      prometheus.Histogram
	stitchFragments     prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		activeParticipants: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_active_participants",
			Help: "Number of connected signaling participants",
		}),

		participantErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_participant_errors_total",
				Help: "Total number of participant connection errors",
			},
			[]string{"error_type"},
		),

		activeRooms: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_active_rooms",
			Help: "Number of rooms with at least one participant",
		}),

		roomsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_rooms_created_total",
				Help: "Total number of rooms implicitly created",
			},
			[]string{"room_id"},
		),

		roomsDestroyed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_rooms_destroyed_total",
				Help: "Total number of rooms destroyed after emptying",
			},
			[]string{"room_id"},
		),

		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_signaling_messages_received_total",
				Help: "Total number of signaling messages received",
			},
			[]string{"message_type"},
		),

		messagesRelayed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_signaling_messages_relayed_total",
				Help: "Total number of signaling messages relayed to peers",
			},
			[]string{"message_type"},
		),

		messagesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_signaling_messages_dropped_total",
				Help: "Total number of signaling messages dropped",
			},
			[]string{"message_type", "reason"},
		),

		messageSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roomcast_signaling_message_size_bytes",
				Help:    "Size of received signaling messages in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"message_type"},
		),

		chunksIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_chunks_ingested_total",
				Help: "Total number of recording chunks stored",
			},
			[]string{"room_id"},
		),

		chunksRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_chunks_rejected_total",
				Help: "Total number of recording chunks rejected",
			},
			[]string{"room_id", "reason"},
		),

		chunkSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roomcast_chunk_size_bytes",
				Help:    "Size of ingested chunks in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"room_id"},
		),

		recordingsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_recordings_completed_total",
				Help: "Total number of recordings stitched successfully",
			},
			[]string{"room_id"},
		),

		recordingsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roomcast_recordings_failed_total",
				Help: "Total number of recording completions that failed",
			},
			[]string{"room_id", "reason"},
		),

		stitchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomcast_stitch_duration_seconds",
			Help:    "Wall-clock time of fragment concatenation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		stitchFragments: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomcast_stitch_fragments",
			Help:    "Number of fragments per stitched recording",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// ParticipantConnected records a new signaling connection
func (c *PrometheusCollector) ParticipantConnected() {
	c.activeParticipants.Inc()
}

// ParticipantDisconnected records a closed signaling connection
func (c *PrometheusCollector) ParticipantDisconnected() {
	c.activeParticipants.Dec()
}

// ParticipantError records a participant connection error
func (c *PrometheusCollector) ParticipantError(errorType string) {
	c.participantErrors.WithLabelValues(errorType).Inc()
}

// RoomCreated records an implicit room creation
func (c *PrometheusCollector) RoomCreated(roomID string) {
	c.activeRooms.Inc()
	c.roomsCreated.WithLabelValues(roomID).Inc()
}

// RoomDestroyed records an implicit room destruction
func (c *PrometheusCollector) RoomDestroyed(roomID string) {
	c.activeRooms.Dec()
	c.roomsDestroyed.WithLabelValues(roomID).Inc()
}

// MessageReceived records an inbound signaling message
func (c *PrometheusCollector) MessageReceived(messageType string, sizeBytes int) {
	c.messagesReceived.WithLabelValues(messageType).Inc()
	c.messageSize.WithLabelValues(messageType).Observe(float64(sizeBytes))
}

// MessageRelayed records a signaling message delivered to a peer
func (c *PrometheusCollector) MessageRelayed(messageType string) {
	c.messagesRelayed.WithLabelValues(messageType).Inc()
}

// MessageDropped records a signaling message that was not delivered
func (c *PrometheusCollector) MessageDropped(messageType, reason string) {
	c.messagesDropped.WithLabelValues(messageType, reason).Inc()
}

// ChunkIngested records a stored recording chunk
func (c *PrometheusCollector) ChunkIngested(roomID string, sizeBytes int) {
	c.chunksIngested.WithLabelValues(roomID).Inc()
	c.chunkSize.WithLabelValues(roomID).Observe(float64(sizeBytes))
}

// ChunkRejected records a rejected recording chunk
func (c *PrometheusCollector) ChunkRejected(roomID, reason string) {
	c.chunksRejected.WithLabelValues(roomID, reason).Inc()
}

// RecordingCompleted records a successful stitch
func (c *PrometheusCollector) RecordingCompleted(roomID string, fragments int, duration time.Duration) {
	c.recordingsCompleted.WithLabelValues(roomID).Inc()
	c.stitchDuration.Observe(duration.Seconds())
	c.stitchFragments.Observe(float64(fragments))
}

// RecordingFailed records a failed completion
func (c *PrometheusCollector) RecordingFailed(roomID, reason string) {
	c.recordingsFailed.WithLabelValues(roomID, reason).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.Handler()
}

// NoopCollector discards all metrics. Used in tests and in the client
// binary, which has no metrics endpoint.
type NoopCollector struct{}

func (NoopCollector) ParticipantConnected()                         {}
func (NoopCollector) ParticipantDisconnected()                      {}
func (NoopCollector) ParticipantError(string)                       {}
func (NoopCollector) RoomCreated(string)                            {}
func (NoopCollector) RoomDestroyed(string)                          {}
func (NoopCollector) MessageReceived(string, int)                   {}
func (NoopCollector) MessageRelayed(string)                         {}
func (NoopCollector) MessageDropped(string, string)                 {}
func (NoopCollector) ChunkIngested(string, int)                     {}
func (NoopCollector) ChunkRejected(string, string)                  {}
func (NoopCollector) RecordingCompleted(string, int, time.Duration) {}
func (NoopCollector) RecordingFailed(string, string)                {}
func (NoopCollector) Handler() http.Handler                         { return http.NotFoundHandler() }
