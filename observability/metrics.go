package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics gathers the realtime counters. A nil *Metrics records nothing,
// which keeps tests free of registry plumbing.
type Metrics struct {
	sessions        prometheus.Gauge
	evictions       prometheus.Counter
	rejected        *prometheus.CounterVec
	presenceUpdates *prometheus.CounterVec
	typingUpdates   *prometheus.CounterVec
	messages        *prometheus.CounterVec
	persistDuration prometheus.Histogram
	dropped         prometheus.Counter
	processRSS      prometheus.Gauge
	processCPU      prometheus.Gauge
	bufferPeak      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "sessions_active",
			Help:      "Number of authenticated sessions held by the registry.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "sessions_evicted_total",
			Help:      "Sessions closed because the same user connected again.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "connections_rejected_total",
			Help:      "Connections refused before a session was created.",
		}, []string{"reason"}),
		presenceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "presence_updates_total",
			Help:      "presence:update events delivered to partners.",
		}, []string{"online"}),
		typingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "typing_updates_total",
			Help:      "typing:update events delivered to room subscribers.",
		}, []string{"typing"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "messages_total",
			Help:      "message:send outcomes.",
		}, []string{"result"}),
		persistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rendezvous",
			Name:      "message_persist_seconds",
			Help:      "Time spent in the message store.",
			Buckets:   prometheus.DefBuckets,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "events_dropped_total",
			Help:      "Outbound events dropped because a session buffer was full or closed.",
		}),
		processRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the server process.",
		}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the server process.",
		}),
		bufferPeak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "send_buffer_peak_ratio",
			Help:      "Fill ratio of the fullest session send buffer at the last sample.",
		}),
	}
	reg.MustRegister(m.sessions, m.evictions, m.rejected, m.presenceUpdates, m.typingUpdates,
		m.messages, m.persistDuration, m.dropped, m.processRSS, m.processCPU, m.bufferPeak)
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) PresenceDelivered(online bool) {
	if m == nil {
		return
	}
	m.presenceUpdates.WithLabelValues(boolLabel(online)).Inc()
}

func (m *Metrics) TypingDelivered(typing bool) {
	if m == nil {
		return
	}
	m.typingUpdates.WithLabelValues(boolLabel(typing)).Inc()
}

// MessageResult records a send outcome, labelled with an error code or "sent".
func (m *Metrics) MessageResult(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePersist(d time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(d.Seconds())
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) SetProcessStats(rss uint64, cpu float64) {
	if m == nil {
		return
	}
	m.processRSS.Set(float64(rss))
	m.processCPU.Set(cpu)
}

func (m *Metrics) SetSendBufferPeak(ratio float64) {
	if m == nil {
		return
	}
	m.bufferPeak.Set(ratio)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
