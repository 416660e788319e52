package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const metricsNamespace = "gpu_pulse"

// Metrics is the server's Prometheus instrumentation. It owns a private
// registry so tests can build many servers in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	benchmarks        *prometheus.CounterVec
	benchmarkDuration *prometheus.HistogramVec
	feedClients       prometheus.Gauge
	feedFrames        *prometheus.CounterVec
	hostGauges        *prometheus.GaugeVec
	gpuGauges         *prometheus.GaugeVec
	collectorHealthy  *prometheus.GaugeVec
}

// NewMetrics creates the metric set and registers it with process and Go
// runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		benchmarks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "benchmark",
			Name:      "runs_total",
			Help:      "Benchmark runs by type, lane and outcome",
		}, []string{"type", "lane", "outcome"}),
		benchmarkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "benchmark",
			Name:      "duration_seconds",
			Help:      "Benchmark wall time",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type", "lane"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected push feed clients",
		}),
		feedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "feed",
			Name:      "frames_total",
			Help:      "Push feed frames by event and direction",
		}, []string{"event", "direction"}),
		hostGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "host",
			Name:      "usage_percent",
			Help:      "Latest host utilisation sample",
		}, []string{"resource"}),
		gpuGauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gpu",
			Name:      "reading",
			Help:      "Latest GPU reading (load fraction, memory MiB, temperature C)",
		}, []string{"gpu", "reading"}),
		collectorHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "collector",
			Name:      "healthy",
			Help:      "1 when the collector's last run succeeded",
		}, []string{"collector"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.benchmarks,
		m.benchmarkDuration,
		m.feedClients,
		m.feedFrames,
		m.hostGauges,
		m.gpuGauges,
		m.collectorHealthy,
	)
	return m
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Middleware counts requests by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) observeBenchmark(kind telemetry.Kind, lane string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.benchmarks.WithLabelValues(string(kind), lane, outcome).Inc()
	if err == nil {
		m.benchmarkDuration.WithLabelValues(string(kind), lane).Observe(d.Seconds())
	}
}

// eventOther labels frames whose event the feed does not define.
const eventOther = "other"

func (m *Metrics) frame(event, direction string) {
	m.feedFrames.WithLabelValues(frameLabel(event), direction).Inc()
}

// frameLabel keeps the event label bounded: clients choose the event string
// of inbound frames.
func frameLabel(event string) string {
	switch event {
	case telemetry.EventConnected,
		telemetry.EventSystemStats,
		telemetry.EventRequestBenchmark,
		telemetry.EventBenchmarkResult,
		telemetry.EventBenchmarkError:
		return event
	default:
		return eventOther
	}
}

func (m *Metrics) observeStats(s *telemetry.Stats) {
	if s.CPU != nil && s.CPU.UsagePercent != nil {
		m.hostGauges.WithLabelValues("cpu").Set(*s.CPU.UsagePercent)
	}
	if s.Memory != nil && s.Memory.Percent != nil {
		m.hostGauges.WithLabelValues("memory").Set(*s.Memory.Percent)
	}
	if s.Disk != nil && s.Disk.Percent != nil {
		m.hostGauges.WithLabelValues("disk").Set(*s.Disk.Percent)
	}
}

func (m *Metrics) observeGPUs(devices []telemetry.GPUDevice) {
	for _, d := range devices {
		id := strconv.Itoa(d.ID)
		set := func(reading string, v *float64) {
			if v != nil {
				m.gpuGauges.WithLabelValues(id, reading).Set(*v)
			}
		}
		set("load", d.Load)
		set("memory_used_mib", d.MemoryUsed)
		set("memory_total_mib", d.MemoryTotal)
		set("temperature_celsius", d.Temperature)
	}
}

func (m *Metrics) collectorStatus(name string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.collectorHealthy.WithLabelValues(name).Set(v)
}
