package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
)

type ManagerState int32

const (
	ManagerStateStopped ManagerState = iota
	ManagerStateRunning
)

// Manager hands out no-op instruments until the wrapped backend runs.
type Manager struct {
	logger  types.Logger
	manager types.MetricsManager
	state   atomic.Value
}

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(config types.ConfigManager, logger types.Logger) (*Manager, error) {
	metricsConfig := config.GetConfig().Metrics

	if metricsConfig == nil || !metricsConfig.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	wrapper := &Manager{logger: logger}
	wrapper.state.Store(ManagerStateStopped)

	var manager types.MetricsManager
	var err error

	switch metricsConfig.Type {
	case "", "prometheus":
		manager, err = NewPrometheusMetrics(logger, metricsConfig)
	default:
		if creator, exists := customMetricsCreators.Load(metricsConfig.Type); exists {
			manager, err = creator.(types.MetricsManagerCreator)(metricsConfig)
		} else {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", metricsConfig.Type)
		}
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	wrapper.manager = manager
	logger.Info("Metrics manager initialized", zap.String("type", metricsConfig.Type))

	return wrapper, nil
}

func (w *Manager) Start() error {
	if !w.state.CompareAndSwap(ManagerStateStopped, ManagerStateRunning) {
		return types.ErrServerAlreadyRunning
	}

	if err := w.manager.Start(); err != nil {
		w.state.Store(ManagerStateStopped)
		return types.WrapError(err, "failed to start metrics manager")
	}

	return nil
}

func (w *Manager) Stop() error {
	if !w.state.CompareAndSwap(ManagerStateRunning, ManagerStateStopped) {
		return types.ErrServerNotRunning
	}

	if err := w.manager.Stop(); err != nil {
		w.logger.Error("Error during metrics manager shutdown", zap.Error(err))
	}

	return nil
}

func (w *Manager) IsRunning() bool {
	return w.state.Load().(ManagerState) == ManagerStateRunning
}

func (w *Manager) Counter(name string, labels map[string]string) types.Counter {
	if w.IsRunning() {
		return w.manager.Counter(name, labels)
	}
	return &emptyCounter{}
}

func (w *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	if w.IsRunning() {
		return w.manager.Gauge(name, labels)
	}
	return &emptyGauge{}
}

func (w *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if w.IsRunning() {
		return w.manager.Histogram(name, buckets, labels)
	}
	return &emptyHistogram{}
}

func (w *Manager) Handler() http.Handler {
	return w.manager.Handler()
}

type emptyCounter struct{}

func (c *emptyCounter) Inc()          {}
func (c *emptyCounter) Add(_ float64) {}
func (c *emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (g *emptyGauge) Set(_ float64) {}
func (g *emptyGauge) Inc()          {}
func (g *emptyGauge) Dec()          {}
func (g *emptyGauge) Get() float64  { return 0 }

type emptyHistogram struct{}

func (h *emptyHistogram) Observe(_ float64)           {}
func (h *emptyHistogram) ObserveDuration(_ time.Time) {}
func (h *emptyHistogram) GetCount() uint64            { return 0 }
