package workers

import (
	"context"
	"log/slog"
	"rendezvous/observability"
	"rendezvous/runtime"
	"time"
)

// BufferSource lists the send buffer levels of the live sessions.
type BufferSource interface {
	SendBufferLevels() []runtime.BufferLevel
}

// SendBufferWorker periodically reports how full the session send buffers are.
// Reading len and cap of a channel does not block its writers, so sampling
// never slows delivery down. A session close to its capacity is about to be
// disconnected as a slow consumer.
type SendBufferWorker struct {
	log            *slog.Logger
	source         BufferSource
	metrics        *observability.Metrics
	metricInterval time.Duration
	warnRatio      float64
}

func NewSendBufferWorker(log *slog.Logger, source BufferSource, metrics *observability.Metrics,
	metricInterval time.Duration) *SendBufferWorker {
	return &SendBufferWorker{
		log:            log,
		source:         source,
		metrics:        metrics,
		metricInterval: metricInterval,
		warnRatio:      0.8,
	}
}

func (w *SendBufferWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping send buffer sampling")
			return nil
		case <-ticker.C:
			w.metrics.SetSendBufferPeak(w.sample())
		}
	}
}

// sample returns the highest fill ratio and warns about sessions close to eviction.
func (w *SendBufferWorker) sample() float64 {
	peak := 0.0
	for _, level := range w.source.SendBufferLevels() {
		if level.Capacity == 0 {
			continue
		}
		ratio := float64(level.Length) / float64(level.Capacity)
		if ratio >= w.warnRatio {
			w.log.Warn("Send buffer almost full", "user_id", level.UserID,
				"length", level.Length, "capacity", level.Capacity)
		}
		peak = max(peak, ratio)
	}
	return peak
}
