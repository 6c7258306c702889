package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type MemoryConfig struct {
	MaxEntries int `json:"max_entries"`
}

// MemoryStore keeps every namespace in process memory. Values are copied on
// the way in and out so callers never share backing arrays with the store.
type MemoryStore struct {
	logger  types.Logger
	config  *MemoryConfig
	data    map[string]map[string][]byte
	sets    map[string]map[string]map[string]struct{}
	entries int
	mu      sync.RWMutex
	state   atomic.Value
}

var _ types.KVStore = (*MemoryStore)(nil)
var _ types.SetStore = (*MemoryStore)(nil)

func NewMemoryStore(logger types.Logger, config *types.StoreConfig) (*MemoryStore, error) {
	memConfig := &MemoryConfig{}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, memConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory store config")
		}
	}

	store := &MemoryStore{
		logger: logger,
		config: memConfig,
		data:   make(map[string]map[string][]byte),
		sets:   make(map[string]map[string]map[string]struct{}),
	}
	store.state.Store(StateStopped)

	return store, nil
}

func (m *MemoryStore) Exists(_ context.Context, namespace, key string) (bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.data[namespace][key]; ok {
		return true, nil
	}
	_, ok := m.sets[namespace][key]
	return ok, nil
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *MemoryStore) Put(_ context.Context, namespace, key string, value []byte) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}

	if _, exists := ns[key]; !exists {
		if m.config.MaxEntries > 0 && m.entries >= m.config.MaxEntries {
			m.logger.Warn("Memory store is full",
				zap.String("namespace", namespace),
				zap.Int("max_entries", m.config.MaxEntries))
			return types.NewBackendError("put", namespace, key, types.ErrStoreOperation)
		}
		m.entries++
	}

	ns[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[namespace][key]; ok {
		delete(m.data[namespace], key)
		m.entries--
	}
	delete(m.sets[namespace], key)

	return nil
}

func (m *MemoryStore) DeleteAll(_ context.Context, namespace string) error {
	if namespace == "" {
		return types.ErrStoreNamespaceEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries -= len(m.data[namespace])
	delete(m.data, namespace)
	delete(m.sets, namespace)

	return nil
}

func (m *MemoryStore) SetAdd(_ context.Context, namespace, key string, members ...string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.sets[namespace]
	if !ok {
		ns = make(map[string]map[string]struct{})
		m.sets[namespace] = ns
	}

	set, ok := ns[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		ns[key] = set
	}

	for _, member := range members {
		set[member] = struct{}{}
	}

	return nil
}

func (m *MemoryStore) SetMembers(_ context.Context, namespace, key string) ([]string, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.sets[namespace][key]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}

	return members, nil
}

func (m *MemoryStore) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[namespace]) + len(m.sets[namespace])
}

func (m *MemoryStore) Start() error {
	if !m.transitionState(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	m.logger.Info("Memory store started")
	return nil
}

func (m *MemoryStore) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}
	defer m.state.Store(StateStopped)

	m.mu.Lock()
	cleared := m.entries
	m.data = make(map[string]map[string][]byte)
	m.sets = make(map[string]map[string]map[string]struct{})
	m.entries = 0
	m.mu.Unlock()

	m.logger.Info("Memory store stopped", zap.Int("cleared_entries", cleared))
	return nil
}

func (m *MemoryStore) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryStore) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryStore) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func validateKey(namespace, key string) error {
	if namespace == "" {
		return types.ErrStoreNamespaceEmpty
	}
	if key == "" {
		return types.ErrStoreKeyEmpty
	}
	return nil
}
