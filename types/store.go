package types

import (
	"context"
)

// KVStore is namespaced key/value persistence used by the content and
// template caches. Get reports absent keys with ok=false and a nil error.
type KVStore interface {
	LifecycleManager
	Exists(ctx context.Context, namespace, key string) (bool, error)
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
	DeleteAll(ctx context.Context, namespace string) error
}

// SetStore is implemented by backends that can add to a set atomically.
// Sets written through SetAdd must only be read through SetMembers; Delete
// and DeleteAll remove them like any other key.
type SetStore interface {
	SetAdd(ctx context.Context, namespace, key string, members ...string) error
	SetMembers(ctx context.Context, namespace, key string) ([]string, error)
}

type StoreCreator func(config interface{}) (KVStore, error)
