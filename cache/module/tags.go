package module

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

// TagIndex maps a tag to the identifiers registered under it. One store
// entry per tag holds the member set.
type TagIndex struct {
	store    types.KVStore
	sets     types.SetStore
	logger   types.Logger
	data     string
	metadata string
	tags     string
	locks    sync.Map
}

func NewTagIndex(store types.KVStore, logger types.Logger, dataNamespace, metadataNamespace, tagNamespace string) *TagIndex {
	index := &TagIndex{
		store:    store,
		logger:   logger,
		data:     dataNamespace,
		metadata: metadataNamespace,
		tags:     tagNamespace,
	}

	if sets, ok := store.(types.SetStore); ok {
		index.sets = sets
	}

	return index
}

// Register adds identifier to every tag's member set. Adding an identifier
// already present leaves the set unchanged.
func (t *TagIndex) Register(ctx context.Context, identifier string, tags []string) error {
	if identifier == "" {
		return types.ErrStoreKeyEmpty
	}

	for _, tag := range dedup(tags) {
		if tag == "" {
			continue
		}

		var err error
		if t.sets != nil {
			err = t.sets.SetAdd(ctx, t.tags, tag, identifier)
		} else {
			err = t.appendMember(ctx, tag, identifier)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *TagIndex) appendMember(ctx context.Context, tag, identifier string) error {
	lock := t.lockFor(tag)
	lock.Lock()
	defer lock.Unlock()

	members, err := t.readMembers(ctx, tag)
	if err != nil {
		return err
	}

	for _, member := range members {
		if member == identifier {
			return nil
		}
	}

	raw, err := utils.Marshal(append(members, identifier))
	if err != nil {
		return types.NewBackendError("encode", t.tags, tag, err)
	}

	return t.store.Put(ctx, t.tags, tag, raw)
}

// Members returns the identifiers registered under tag.
func (t *TagIndex) Members(ctx context.Context, tag string) ([]string, error) {
	if tag == "" {
		return nil, types.ErrStoreKeyEmpty
	}

	if t.sets != nil {
		return t.sets.SetMembers(ctx, t.tags, tag)
	}

	return t.readMembers(ctx, tag)
}

func (t *TagIndex) readMembers(ctx context.Context, tag string) ([]string, error) {
	raw, ok, err := t.store.Get(ctx, t.tags, tag)
	if err != nil || !ok {
		return nil, err
	}

	var members []string
	if err := utils.Unmarshal(raw, &members); err != nil {
		return nil, types.NewBackendError("decode", t.tags, tag, err)
	}

	return members, nil
}

// Invalidate removes every identifier registered under any of tags from the
// data and metadata namespaces, plus any tag entry keyed by that identifier.
// It returns the deduplicated identifiers in first-seen order.
func (t *TagIndex) Invalidate(ctx context.Context, tags []string) ([]string, error) {
	var invalidate []string
	seen := make(map[string]struct{})

	for _, tag := range dedup(tags) {
		if tag == "" {
			continue
		}

		members, err := t.Members(ctx, tag)
		if err != nil {
			return nil, err
		}

		for _, identifier := range members {
			if _, ok := seen[identifier]; ok {
				continue
			}
			seen[identifier] = struct{}{}
			invalidate = append(invalidate, identifier)
		}
	}

	for _, identifier := range invalidate {
		for _, namespace := range []string{t.data, t.metadata, t.tags} {
			if err := t.store.Delete(ctx, namespace, identifier); err != nil {
				return nil, err
			}
		}
	}

	t.logger.Debug("Invalidated cache entries by tag",
		zap.String("namespace", t.data),
		zap.Strings("tags", tags),
		zap.Int("identifiers", len(invalidate)))

	return invalidate, nil
}

// InvalidateAll drops the data, metadata and tag namespaces.
func (t *TagIndex) InvalidateAll(ctx context.Context) error {
	for _, namespace := range []string{t.data, t.metadata, t.tags} {
		if err := t.store.DeleteAll(ctx, namespace); err != nil {
			return err
		}
	}

	t.logger.Info("Flushed cache", zap.String("namespace", t.data))
	return nil
}

func (t *TagIndex) lockFor(tag string) *sync.Mutex {
	lock, _ := t.locks.LoadOrStore(tag, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func dedup(values []string) []string {
	if len(values) < 2 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
