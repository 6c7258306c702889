package module

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

const (
	ContentNamespace  = "content"
	TemplateNamespace = "template"

	metadataSuffix = "_metadata"
	tagsSuffix     = "_tags"
)

// Metadata is persisted next to every cached body.
type Metadata struct {
	ExpiresAt time.Time `json:"expires_at"`
	ETag      string    `json:"etag,omitempty"`
}

// Expired reports whether the entry must not be served at now. A zero
// ExpiresAt never expires.
func (m Metadata) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && m.ExpiresAt.Before(now)
}

type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock replaces time.Now for expiry calculations.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// namespacedCache is the storage core shared by content and template caches:
// a data namespace, its metadata namespace and a tag index over both.
type namespacedCache struct {
	store    types.KVStore
	logger   types.Logger
	data     string
	metadata string
	tags     *TagIndex
	ttl      time.Duration
	clock    func() time.Time
}

func newNamespacedCache(name string, store types.KVStore, logger types.Logger, ttl time.Duration, opts []Option) *namespacedCache {
	o := buildOptions(opts)

	return &namespacedCache{
		store:    store,
		logger:   logger,
		data:     name,
		metadata: name + metadataSuffix,
		tags:     NewTagIndex(store, logger, name, name+metadataSuffix, name+tagsSuffix),
		ttl:      ttl,
		clock:    o.clock,
	}
}

func (c *namespacedCache) readMetadata(ctx context.Context, identifier string) (Metadata, bool, error) {
	var meta Metadata

	raw, ok, err := c.store.Get(ctx, c.metadata, identifier)
	if err != nil || !ok {
		return meta, false, err
	}

	if err := utils.Unmarshal(raw, &meta); err != nil {
		return meta, false, types.NewBackendError("decode", c.metadata, identifier, err)
	}

	return meta, true, nil
}

// lookup returns the body for identifier when metadata exists, has not
// expired and the body itself is still present.
func (c *namespacedCache) lookup(ctx context.Context, identifier string) ([]byte, Metadata, bool, error) {
	if identifier == "" {
		return nil, Metadata{}, false, types.ErrStoreKeyEmpty
	}

	meta, ok, err := c.readMetadata(ctx, identifier)
	if err != nil || !ok {
		return nil, meta, false, err
	}

	if meta.Expired(c.clock()) {
		c.logger.Debug("Cache entry expired",
			zap.String("namespace", c.data),
			zap.String("identifier", identifier),
			zap.Time("expires_at", meta.ExpiresAt))
		return nil, meta, false, nil
	}

	body, ok, err := c.store.Get(ctx, c.data, identifier)
	if err != nil || !ok {
		return nil, meta, false, err
	}

	return body, meta, true, nil
}

func (c *namespacedCache) put(ctx context.Context, identifier string, body []byte, etag string, ttl time.Duration) (Metadata, error) {
	if identifier == "" {
		return Metadata{}, types.ErrStoreKeyEmpty
	}

	meta := Metadata{ETag: etag}
	if ttl > 0 {
		meta.ExpiresAt = c.clock().Add(ttl)
	}

	raw, err := utils.Marshal(meta)
	if err != nil {
		return meta, types.NewBackendError("encode", c.metadata, identifier, err)
	}

	if err := c.store.Put(ctx, c.metadata, identifier, raw); err != nil {
		return meta, err
	}

	if err := c.store.Put(ctx, c.data, identifier, body); err != nil {
		return meta, err
	}

	return meta, nil
}
