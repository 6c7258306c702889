package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

type RedisConfig struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	Password           string        `json:"password"`
	DB                 int           `json:"db"`
	PoolSize           int           `json:"pool_size"`
	MinIdleConnections int           `json:"min_idle_connections"`
	DialTimeout        time.Duration `json:"dial_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
	WriteTimeout       time.Duration `json:"write_timeout"`
	KeyPrefix          string        `json:"key_prefix"`
	ScanCount          int64         `json:"scan_count"`
}

// RedisStore maps a namespace/key pair to "<prefix>:<namespace>:<key>".
// Tag sets live in native redis sets, so SetAdd is atomic across processes.
type RedisStore struct {
	logger  types.Logger
	config  *RedisConfig
	client  redis.UniversalClient
	started int32
}

var _ types.KVStore = (*RedisStore)(nil)
var _ types.SetStore = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.StoreConfig) (*RedisStore, error) {
	var redisConfig = &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		KeyPrefix:          "sai-render",
		ScanCount:          500,
	}

	if config != nil && config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis store config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	store := NewRedisStoreWithClient(logger, redisConfig, client)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, types.WrapError(types.ErrStoreConnection, err.Error())
	}

	return store, nil
}

// NewRedisStoreWithClient wraps an existing client; used by tests and by
// callers that share one redis connection pool.
func NewRedisStoreWithClient(logger types.Logger, config *RedisConfig, client redis.UniversalClient) *RedisStore {
	if config == nil {
		config = &RedisConfig{KeyPrefix: "sai-render", ScanCount: 500}
	}
	return &RedisStore{
		logger: logger,
		config: config,
		client: client,
	}
}

func (r *RedisStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return false, err
	}

	n, err := r.client.Exists(ctx, r.buildKey(namespace, key)).Result()
	if err != nil {
		return false, types.NewBackendError("exists", namespace, key, err)
	}

	return n > 0, nil
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, false, err
	}

	value, err := r.client.Get(ctx, r.buildKey(namespace, key)).Bytes()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return nil, false, nil
		}
		r.logger.Error("failed to get store entry", zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return nil, false, types.NewBackendError("get", namespace, key, err)
	}

	return value, true, nil
}

func (r *RedisStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.buildKey(namespace, key), value, 0).Err(); err != nil {
		r.logger.Error("failed to set store entry", zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return types.NewBackendError("put", namespace, key, err)
	}

	return nil
}

func (r *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.buildKey(namespace, key)).Err(); err != nil {
		return types.NewBackendError("delete", namespace, key, err)
	}

	return nil
}

// DeleteAll walks the namespace with SCAN so large namespaces never block
// the server the way KEYS would.
func (r *RedisStore) DeleteAll(ctx context.Context, namespace string) error {
	if namespace == "" {
		return types.ErrStoreNamespaceEmpty
	}

	match := r.buildKey(namespace, "*")
	var cursor uint64
	deleted := 0

	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, r.config.ScanCount).Result()
		if err != nil {
			return types.NewBackendError("delete_all", namespace, "", err)
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return types.NewBackendError("delete_all", namespace, "", err)
			}
			deleted += len(keys)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logger.Debug("Redis namespace cleared", zap.String("namespace", namespace), zap.Int("deleted", deleted))
	return nil
}

func (r *RedisStore) SetAdd(ctx context.Context, namespace, key string, members ...string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	values := make([]interface{}, len(members))
	for i, member := range members {
		values[i] = member
	}

	if err := r.client.SAdd(ctx, r.buildKey(namespace, key), values...).Err(); err != nil {
		return types.NewBackendError("set_add", namespace, key, err)
	}

	return nil
}

func (r *RedisStore) SetMembers(ctx context.Context, namespace, key string) ([]string, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, err
	}

	members, err := r.client.SMembers(ctx, r.buildKey(namespace, key)).Result()
	if err != nil {
		return nil, types.NewBackendError("set_members", namespace, key, err)
	}

	return members, nil
}

func (r *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	r.logger.Info("Redis store started", zap.String("prefix", r.config.KeyPrefix))
	return nil
}

func (r *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis store closed")
	return nil
}

func (r *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisStore) buildKey(namespace, key string) string {
	if r.config.KeyPrefix != "" {
		return r.config.KeyPrefix + ":" + namespace + ":" + key
	}
	return namespace + ":" + key
}
