// Package metrics exposes streaming pipeline counters through a dedicated
// Prometheus registry. All methods are nil-safe so instrumented code paths
// work unchanged when metrics are disabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	framesEncoded     *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	framesTransmitted prometheus.Counter
	encodeSeconds     prometheus.Histogram
	controlRequests   *prometheus.CounterVec
	streaming         prometheus.Gauge
	hostConnected     prometheus.Gauge
}

// New builds a registry with pipeline, Go runtime, and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		framesEncoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcamd",
			Name:      "frames_encoded_total",
			Help:      "Frames successfully converted to the negotiated format.",
		}, []string{"format"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcamd",
			Name:      "frames_dropped_total",
			Help:      "Camera frames that never reached the host.",
		}, []string{"reason"}),
		framesTransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcamd",
			Name:      "frames_transmitted_total",
			Help:      "Buffers handed to the gadget driver for transmission.",
		}),
		encodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "webcamd",
			Name:      "encode_duration_seconds",
			Help:      "Time spent converting one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		controlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcamd",
			Name:      "control_requests_total",
			Help:      "UVC class control requests by request code.",
		}, []string{"request"}),
		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcamd",
			Name:      "streaming",
			Help:      "1 while the gadget is actively transmitting frames.",
		}),
		hostConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcamd",
			Name:      "host_connected",
			Help:      "1 while a USB host is attached to the function.",
		}),
	}

	reg.MustRegister(
		m.framesEncoded,
		m.framesDropped,
		m.framesTransmitted,
		m.encodeSeconds,
		m.controlRequests,
		m.streaming,
		m.hostConnected,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FrameEncoded counts one successful conversion.
func (m *Metrics) FrameEncoded(format string) {
	if m == nil {
		return
	}
	m.framesEncoded.WithLabelValues(format).Inc()
}

// FrameDropped counts one frame lost before transmission.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// FrameTransmitted counts one buffer queued to the gadget driver.
func (m *Metrics) FrameTransmitted() {
	if m == nil {
		return
	}
	m.framesTransmitted.Inc()
}

// ObserveEncodeSeconds records the duration of one conversion.
func (m *Metrics) ObserveEncodeSeconds(s float64) {
	if m == nil {
		return
	}
	m.encodeSeconds.Observe(s)
}

// ControlRequest counts one UVC class request.
func (m *Metrics) ControlRequest(request string) {
	if m == nil {
		return
	}
	m.controlRequests.WithLabelValues(request).Inc()
}

// SetStreaming flips the streaming gauge.
func (m *Metrics) SetStreaming(on bool) {
	if m == nil {
		return
	}
	if on {
		m.streaming.Set(1)
	} else {
		m.streaming.Set(0)
	}
}

// SetHostConnected flips the host attachment gauge.
func (m *Metrics) SetHostConnected(on bool) {
	if m == nil {
		return
	}
	if on {
		m.hostConnected.Set(1)
	} else {
		m.hostConnected.Set(0)
	}
}
