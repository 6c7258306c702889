package cache

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

type CloverConfig struct {
	Path string `json:"path"`
}

const (
	cloverKeyField   = "key"
	cloverValueField = "value"
)

// CloverStore keeps one clover collection per namespace, one document per key.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
	config *CloverConfig
	mu     sync.Mutex
	state  atomic.Value
}

var _ types.KVStore = (*CloverStore)(nil)

func NewCloverStore(logger types.Logger, config *types.StoreConfig) (*CloverStore, error) {
	cloverConfig := &CloverConfig{}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, cloverConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover store config")
		}
	}

	var db *clover.DB
	var err error

	if cloverConfig.Path == "" {
		db, err = clover.Open("", clover.InMemoryMode(true))
	} else {
		db, err = clover.Open(cloverConfig.Path)
	}
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	store := &CloverStore{
		db:     db,
		logger: logger,
		config: cloverConfig,
	}
	store.state.Store(StateStopped)

	return store, nil
}

func (c *CloverStore) Exists(_ context.Context, namespace, key string) (bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return false, err
	}

	doc, err := c.find(namespace, key)
	if err != nil {
		return false, types.NewBackendError("exists", namespace, key, err)
	}

	return doc != nil, nil
}

func (c *CloverStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, false, err
	}

	doc, err := c.find(namespace, key)
	if err != nil {
		return nil, false, types.NewBackendError("get", namespace, key, err)
	}
	if doc == nil {
		return nil, false, nil
	}

	encoded, _ := doc.Get(cloverValueField).(string)
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, types.NewBackendError("get", namespace, key, err)
	}

	return value, true, nil
}

func (c *CloverStore) Put(_ context.Context, namespace, key string, value []byte) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureCollection(namespace); err != nil {
		return types.NewBackendError("put", namespace, key, err)
	}

	query := c.db.Query(namespace).Where(clover.Field(cloverKeyField).Eq(key))
	count, err := query.Count()
	if err != nil {
		return types.NewBackendError("put", namespace, key, err)
	}

	if count > 0 {
		err = query.Update(map[string]interface{}{cloverValueField: encoded})
	} else {
		doc := clover.NewDocument()
		doc.Set(cloverKeyField, key)
		doc.Set(cloverValueField, encoded)
		err = c.db.Insert(namespace, doc)
	}
	if err != nil {
		return types.NewBackendError("put", namespace, key, err)
	}

	return nil
}

func (c *CloverStore) Delete(_ context.Context, namespace, key string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.db.HasCollection(namespace)
	if err != nil {
		return types.NewBackendError("delete", namespace, key, err)
	}
	if !exists {
		return nil
	}

	if err := c.db.Query(namespace).Where(clover.Field(cloverKeyField).Eq(key)).Delete(); err != nil {
		return types.NewBackendError("delete", namespace, key, err)
	}

	return nil
}

func (c *CloverStore) DeleteAll(_ context.Context, namespace string) error {
	if namespace == "" {
		return types.ErrStoreNamespaceEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.db.HasCollection(namespace)
	if err != nil {
		return types.NewBackendError("delete_all", namespace, "", err)
	}
	if !exists {
		return nil
	}

	if err := c.db.DropCollection(namespace); err != nil {
		return types.NewBackendError("delete_all", namespace, "", err)
	}

	return nil
}

func (c *CloverStore) Start() error {
	if !c.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	c.logger.Info("CloverDB store started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverStore) Stop() error {
	if !c.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	c.logger.Info("CloverDB store stopped")
	return nil
}

func (c *CloverStore) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

func (c *CloverStore) find(namespace, key string) (*clover.Document, error) {
	exists, err := c.db.HasCollection(namespace)
	if err != nil || !exists {
		return nil, err
	}

	docs, err := c.db.Query(namespace).Where(clover.Field(cloverKeyField).Eq(key)).Limit(1).FindAll()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	return docs[0], nil
}

func (c *CloverStore) ensureCollection(namespace string) error {
	exists, err := c.db.HasCollection(namespace)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.db.CreateCollection(namespace)
}
