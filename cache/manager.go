package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-render/types"
)

var customStoreCreators = make(map[string]types.StoreCreator)

func RegisterStore(storeName string, creator types.StoreCreator) {
	customStoreCreators[storeName] = creator
}

// NewStore builds the configured backend. When metrics is non-nil the
// backend is wrapped so every operation is counted and timed.
func NewStore(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.KVStore, error) {
	storeConfig := config.GetConfig().Store
	if storeConfig == nil {
		storeConfig = &types.StoreConfig{Type: "memory"}
	}

	storeName := storeConfig.Type

	var impl types.KVStore
	var err error

	switch storeName {
	case "", "memory":
		impl, err = NewMemoryStore(logger, storeConfig)
	case "redis":
		impl, err = NewRedisStore(ctx, logger, storeConfig)
	case "clover":
		impl, err = NewCloverStore(logger, storeConfig)
	case "sqlite":
		impl, err = NewSQLiteStore(logger, storeConfig)
	default:
		if creator, exists := customStoreCreators[storeName]; exists {
			impl, err = creator(storeConfig)
		} else {
			return nil, types.Errorf(types.ErrStoreTypeUnknown, "type: %s", storeName)
		}
	}

	if err != nil {
		return nil, err
	}

	if metrics == nil {
		return impl, nil
	}

	return newInstrumentedStore(logger, metrics, impl), nil
}

type instrumentedStore struct {
	impl    types.KVStore
	logger  types.Logger
	metrics types.MetricsManager
}

type instrumentedSetStore struct {
	*instrumentedStore
	sets types.SetStore
}

func newInstrumentedStore(logger types.Logger, metrics types.MetricsManager, impl types.KVStore) types.KVStore {
	instrumented := &instrumentedStore{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}

	if sets, ok := impl.(types.SetStore); ok {
		return &instrumentedSetStore{instrumentedStore: instrumented, sets: sets}
	}

	return instrumented
}

func (is *instrumentedStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	start := time.Now()
	exists, err := is.impl.Exists(ctx, namespace, key)
	is.recordMetric("exists", namespace, lookupResult(exists, err), time.Since(start))
	return exists, err
}

func (is *instrumentedStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := is.impl.Get(ctx, namespace, key)
	is.recordMetric("get", namespace, lookupResult(ok, err), time.Since(start))
	return value, ok, err
}

func (is *instrumentedStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	start := time.Now()
	err := is.impl.Put(ctx, namespace, key, value)
	is.recordMetric("put", namespace, writeResult(err), time.Since(start))
	return err
}

func (is *instrumentedStore) Delete(ctx context.Context, namespace, key string) error {
	start := time.Now()
	err := is.impl.Delete(ctx, namespace, key)
	is.recordMetric("delete", namespace, writeResult(err), time.Since(start))
	return err
}

func (is *instrumentedStore) DeleteAll(ctx context.Context, namespace string) error {
	start := time.Now()
	err := is.impl.DeleteAll(ctx, namespace)
	is.recordMetric("delete_all", namespace, writeResult(err), time.Since(start))
	return err
}

func (is *instrumentedSetStore) SetAdd(ctx context.Context, namespace, key string, members ...string) error {
	start := time.Now()
	err := is.sets.SetAdd(ctx, namespace, key, members...)
	is.recordMetric("set_add", namespace, writeResult(err), time.Since(start))
	return err
}

func (is *instrumentedSetStore) SetMembers(ctx context.Context, namespace, key string) ([]string, error) {
	start := time.Now()
	members, err := is.sets.SetMembers(ctx, namespace, key)
	is.recordMetric("set_members", namespace, lookupResult(len(members) > 0, err), time.Since(start))
	return members, err
}

func (is *instrumentedStore) Start() error {
	start := time.Now()
	err := is.impl.Start()
	is.recordMetric("start", "", writeResult(err), time.Since(start))
	return err
}

func (is *instrumentedStore) Stop() error {
	return is.impl.Stop()
}

func (is *instrumentedStore) IsRunning() bool {
	return is.impl.IsRunning()
}

func (is *instrumentedStore) recordMetric(operation, namespace, result string, duration time.Duration) {
	opCounter := is.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"namespace": namespace,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

func lookupResult(found bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case found:
		return "hit"
	default:
		return "miss"
	}
}

func writeResult(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
