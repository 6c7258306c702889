package metrics

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
)

const DefaultNamespace = "sai_render"

// RenderBuckets covers a cache hit (sub-millisecond) up to a cold render of a
// deep include tree.
var RenderBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

var metricHelp = map[string]string{
	"render_cache_lookups_total":       "Content cache lookups by result.",
	"render_duration_seconds":          "Time spent serving a page, labelled by cache result.",
	"cache_operations_total":           "KVStore operations by operation and outcome.",
	"cache_operation_duration_seconds": "KVStore operation latency.",
	"http_requests_total":              "HTTP responses by status code.",
	"cron_job_executions_total":        "Scheduled flush runs by job and outcome.",
	"cron_job_duration_seconds":        "Scheduled flush run duration.",
	"cron_scheduler_running":           "1 while the flush scheduler runs.",
}

// PrometheusMetrics registers collectors lazily on first use. A metric name is
// bound to the label names it was first requested with.
type PrometheusMetrics struct {
	logger    types.Logger
	namespace string
	constant  prometheus.Labels
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelSets  map[string]string

	running int32
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) (*PrometheusMetrics, error) {
	p := &PrometheusMetrics{
		logger:     logger,
		namespace:  DefaultNamespace,
		constant:   prometheus.Labels{},
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelSets:  make(map[string]string),
	}

	goMetrics := false
	if config != nil {
		if config.Namespace != "" {
			p.namespace = config.Namespace
		}
		for k, v := range config.Labels {
			p.constant[k] = v
		}
		goMetrics = config.GoMetrics
	}

	if goMetrics {
		if err := p.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, types.WrapError(err, "failed to register go collector")
		}
		if err := p.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, types.WrapError(err, "failed to register process collector")
		}
	}

	logger.Info("Prometheus metrics initialized",
		zap.String("namespace", p.namespace),
		zap.Bool("go_metrics", goMetrics))

	return p, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.bindLabels(name, labels) {
		return &emptyCounter{}
	}

	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   p.namespace,
			Name:        name,
			Help:        helpFor(name),
			ConstLabels: p.constant,
		}, labelNames(labels))
		if !p.register(name, vec) {
			return &emptyCounter{}
		}
		p.counters[name] = vec
	}

	return &PrometheusCounter{logger: p.logger, counter: vec.With(labels)}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.bindLabels(name, labels) {
		return &emptyGauge{}
	}

	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   p.namespace,
			Name:        name,
			Help:        helpFor(name),
			ConstLabels: p.constant,
		}, labelNames(labels))
		if !p.register(name, vec) {
			return &emptyGauge{}
		}
		p.gauges[name] = vec
	}

	return &PrometheusGauge{logger: p.logger, gauge: vec.With(labels)}
}

// Histogram falls back to RenderBuckets when buckets is empty. Buckets of an
// already registered histogram are fixed.
func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.bindLabels(name, labels) {
		return &emptyHistogram{}
	}

	vec, ok := p.histograms[name]
	if !ok {
		if len(buckets) == 0 {
			buckets = RenderBuckets
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   p.namespace,
			Name:        name,
			Help:        helpFor(name),
			Buckets:     buckets,
			ConstLabels: p.constant,
		}, labelNames(labels))
		if !p.register(name, vec) {
			return &emptyHistogram{}
		}
		p.histograms[name] = vec
	}

	return &PrometheusHistogram{logger: p.logger, observer: vec.With(labels)}
}

// Handler exposes the registry in the Prometheus text format.
func (p *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// bindLabels reports whether labels match the label names name was first used
// with. Mixing label sets under one name would make the vector panic.
func (p *PrometheusMetrics) bindLabels(name string, labels map[string]string) bool {
	key := strings.Join(labelNames(labels), ",")
	bound, ok := p.labelSets[name]
	if !ok {
		p.labelSets[name] = key
		return true
	}
	if bound != key {
		p.logger.Warn("Metric requested with a different label set",
			zap.String("name", name),
			zap.String("registered", bound),
			zap.String("requested", key))
		return false
	}
	return true
}

func (p *PrometheusMetrics) register(name string, c prometheus.Collector) bool {
	if err := p.registry.Register(c); err != nil {
		p.logger.Error("Failed to register metric", zap.String("name", name), zap.Error(err))
		delete(p.labelSets, name)
		return false
	}
	p.logger.Debug("Metric registered", zap.String("name", name))
	return true
}

func helpFor(name string) string {
	if help, ok := metricHelp[name]; ok {
		return help
	}
	return strings.ReplaceAll(name, "_", " ")
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func read(logger types.Logger, m prometheus.Metric) *dto.Metric {
	out := &dto.Metric{}
	if err := m.Write(out); err != nil {
		logger.Error("Failed to read metric", zap.Error(err))
	}
	return out
}

type PrometheusCounter struct {
	logger  types.Logger
	counter prometheus.Counter
}

func (c *PrometheusCounter) Inc()              { c.counter.Inc() }
func (c *PrometheusCounter) Add(value float64) { c.counter.Add(value) }

func (c *PrometheusCounter) Get() float64 {
	return read(c.logger, c.counter).GetCounter().GetValue()
}

type PrometheusGauge struct {
	logger types.Logger
	gauge  prometheus.Gauge
}

func (g *PrometheusGauge) Set(value float64) { g.gauge.Set(value) }
func (g *PrometheusGauge) Inc()              { g.gauge.Inc() }
func (g *PrometheusGauge) Dec()              { g.gauge.Dec() }

func (g *PrometheusGauge) Get() float64 {
	return read(g.logger, g.gauge).GetGauge().GetValue()
}

type PrometheusHistogram struct {
	logger   types.Logger
	observer prometheus.Observer
}

func (h *PrometheusHistogram) Observe(value float64) {
	h.observer.Observe(value)
}

func (h *PrometheusHistogram) ObserveDuration(start time.Time) {
	h.observer.Observe(time.Since(start).Seconds())
}

func (h *PrometheusHistogram) GetCount() uint64 {
	m, ok := h.observer.(prometheus.Metric)
	if !ok {
		return 0
	}
	return read(h.logger, m).GetHistogram().GetSampleCount()
}
