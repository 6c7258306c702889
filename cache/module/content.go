package module

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/saiset-co/sai-render/types"
)

// CachedResponse is a servable content cache hit.
type CachedResponse struct {
	Identifier string
	Body       []byte
	ETag       string
	ExpiresAt  time.Time
}

// ContentCache stores final response bodies per request identifier.
type ContentCache struct {
	core *namespacedCache
}

func NewContentCache(store types.KVStore, logger types.Logger, ttl time.Duration, opts ...Option) *ContentCache {
	return &ContentCache{
		core: newNamespacedCache(ContentNamespace, store, logger, ttl, opts),
	}
}

// Lookup returns the cached response for identifier. Only safe methods are
// ever served from cache.
func (c *ContentCache) Lookup(ctx context.Context, method, identifier string) (*CachedResponse, bool, error) {
	if method != types.MethodGet && method != types.MethodHead {
		return nil, false, nil
	}

	body, meta, ok, err := c.core.lookup(ctx, identifier)
	if err != nil || !ok {
		return nil, false, err
	}

	c.core.logger.Debug("Content cache hit", zap.String("identifier", identifier))

	return &CachedResponse{
		Identifier: identifier,
		Body:       body,
		ETag:       meta.ETag,
		ExpiresAt:  meta.ExpiresAt,
	}, true, nil
}

func (c *ContentCache) Check(ctx context.Context, method, identifier string) (bool, error) {
	_, ok, err := c.Lookup(ctx, method, identifier)
	return ok, err
}

// Put stores body under identifier with the configured ttl. An empty etag is
// derived from the body.
func (c *ContentCache) Put(ctx context.Context, identifier string, body []byte, etag string) (Metadata, error) {
	return c.PutWithTTL(ctx, identifier, body, etag, c.core.ttl)
}

func (c *ContentCache) PutWithTTL(ctx context.Context, identifier string, body []byte, etag string, ttl time.Duration) (Metadata, error) {
	if etag == "" {
		etag = ETag(body)
	}

	return c.core.put(ctx, identifier, body, etag, ttl)
}

func (c *ContentCache) Register(ctx context.Context, identifier string, tags []string) error {
	return c.core.tags.Register(ctx, identifier, tags)
}

func (c *ContentCache) Invalidate(ctx context.Context, tags []string) ([]string, error) {
	return c.core.tags.Invalidate(ctx, tags)
}

func (c *ContentCache) InvalidateAll(ctx context.Context) error {
	return c.core.tags.InvalidateAll(ctx)
}

func (c *ContentCache) Tags() *TagIndex {
	return c.core.tags
}

func (c *ContentCache) TTL() time.Duration {
	return c.core.ttl
}

// ETag is the hex blake2b-256 digest of body.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
