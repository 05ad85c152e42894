package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors of the message core.
// A nil *Metrics is valid and records nothing, which keeps tests free of
// registry plumbing.
type Metrics struct {
	// OnlineUsers is the number of distinct users holding a live connection.
	OnlineUsers prometheus.Gauge
	// LiveConnections counts every live connection, tabs included.
	LiveConnections prometheus.Gauge
	// MessagesSent counts persisted messages. Labels: kind (text|file)
	MessagesSent *prometheus.CounterVec
	// Mutations counts edit/delete attempts. Labels: action, result
	Mutations *prometheus.CounterVec
	// Deliveries counts events handed to connections. Labels: type
	Deliveries *prometheus.CounterVec
	// DroppedFrames counts frames dropped because a connection could not keep up.
	DroppedFrames prometheus.Counter
	// UploadDuration measures Blob Uploader latency, retries included.
	UploadDuration prometheus.Histogram
	// WorkerRestarts counts supervised workers restarted after a failure. Labels: worker
	WorkerRestarts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexchat_online_users",
			Help: "Distinct users with at least one live connection",
		}),
		LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nexchat_live_connections",
			Help: "Live authenticated connections",
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexchat_messages_total",
			Help: "Messages persisted by the router",
		}, []string{"kind"}),
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexchat_mutations_total",
			Help: "Edit and delete attempts by outcome",
		}, []string{"action", "result"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexchat_deliveries_total",
			Help: "Events handed to live connections",
		}, []string{"type"}),
		DroppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "nexchat_dropped_frames_total",
			Help: "Frames dropped on slow connections",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexchat_upload_duration_seconds",
			Help:    "Blob upload latency",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		WorkerRestarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexchat_worker_restarts_total",
			Help: "Supervised workers restarted after a panic or an error",
		}, []string{"worker"}),
	}
}

func (m *Metrics) SetOnline(users, connections int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(users))
	m.LiveConnections.Set(float64(connections))
}

func (m *Metrics) MessageSent(withFile bool) {
	if m == nil {
		return
	}
	kind := "text"
	if withFile {
		kind = "file"
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) Mutation(action, result string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Delivered(eventType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deliveries.WithLabelValues(eventType).Add(float64(n))
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.DroppedFrames.Inc()
}

func (m *Metrics) ObserveUpload(d time.Duration) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(d.Seconds())
}

func (m *Metrics) WorkerRestarted(worker string) {
	if m == nil {
		return
	}
	m.WorkerRestarts.WithLabelValues(worker).Inc()
}
