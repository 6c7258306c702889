package module

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-render/types"
)

// TemplateCache stores resolved template elements keyed by template key
// (request identifier plus element name).
type TemplateCache struct {
	core  *namespacedCache
	group singleflight.Group
}

func NewTemplateCache(store types.KVStore, logger types.Logger, ttl time.Duration, opts ...Option) *TemplateCache {
	return &TemplateCache{
		core: newNamespacedCache(TemplateNamespace, store, logger, ttl, opts),
	}
}

func (c *TemplateCache) Check(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *TemplateCache) Get(ctx context.Context, key string) (string, bool, error) {
	body, _, ok, err := c.core.lookup(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return string(body), true, nil
}

func (c *TemplateCache) Put(ctx context.Context, key string, content string) error {
	_, err := c.core.put(ctx, key, []byte(content), "", c.core.ttl)
	return err
}

// GetOrResolve returns the cached content for key, calling resolve and
// storing its result on a miss. Concurrent misses for the same key share a
// single resolve call.
func (c *TemplateCache) GetOrResolve(ctx context.Context, key string, resolve func() (string, error)) (string, error) {
	if content, ok, err := c.Get(ctx, key); err != nil || ok {
		return content, err
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		content, err := resolve()
		if err != nil {
			return "", err
		}
		if err := c.Put(ctx, key, content); err != nil {
			return "", err
		}
		return content, nil
	})
	if err != nil {
		return "", err
	}

	return value.(string), nil
}

func (c *TemplateCache) Register(ctx context.Context, key string, tags []string) error {
	return c.core.tags.Register(ctx, key, tags)
}

func (c *TemplateCache) Invalidate(ctx context.Context, tags []string) ([]string, error) {
	return c.core.tags.Invalidate(ctx, tags)
}

func (c *TemplateCache) InvalidateAll(ctx context.Context) error {
	return c.core.tags.InvalidateAll(ctx)
}

func (c *TemplateCache) Tags() *TagIndex {
	return c.core.tags
}
