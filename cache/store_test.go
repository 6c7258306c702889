package cache

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/logger"
	"github.com/saiset-co/sai-render/types"
)

func backends(t *testing.T) map[string]types.KVStore {
	t.Helper()
	log := logger.NewNop()

	mem, err := NewMemoryStore(log, nil)
	require.NoError(t, err)

	lite, err := NewSQLiteStore(log, nil)
	require.NoError(t, err)

	clv, err := NewCloverStore(log, nil)
	require.NoError(t, err)

	stores := map[string]types.KVStore{
		"memory": mem,
		"sqlite": lite,
		"clover": clv,
	}

	for name, store := range stores {
		require.NoError(t, store.Start(), name)
	}
	t.Cleanup(func() {
		for _, store := range stores {
			_ = store.Stop()
		}
	})

	return stores
}

func TestStorePutGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "content", "GET:/a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Put(ctx, "content", "GET:/a", []byte("<p>hi</p>")))

			exists, err := store.Exists(ctx, "content", "GET:/a")
			require.NoError(t, err)
			assert.True(t, exists)

			value, ok, err := store.Get(ctx, "content", "GET:/a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "<p>hi</p>", string(value))

			require.NoError(t, store.Put(ctx, "content", "GET:/a", []byte("second")))
			value, _, err = store.Get(ctx, "content", "GET:/a")
			require.NoError(t, err)
			assert.Equal(t, "second", string(value))

			require.NoError(t, store.Delete(ctx, "content", "GET:/a"))
			exists, err = store.Exists(ctx, "content", "GET:/a")
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, store.Delete(ctx, "content", "never-written"))
		})
	}
}

func TestStoreNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "content", "k", []byte("body")))
			require.NoError(t, store.Put(ctx, "content_metadata", "k", []byte("meta")))

			require.NoError(t, store.DeleteAll(ctx, "content"))

			_, ok, err := store.Get(ctx, "content", "k")
			require.NoError(t, err)
			assert.False(t, ok)

			value, ok, err := store.Get(ctx, "content_metadata", "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "meta", string(value))

			require.NoError(t, store.DeleteAll(ctx, "unknown_namespace"))
		})
	}
}

func TestStoreEmptyValue(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "content", "empty", nil))

			value, ok, err := store.Get(ctx, "content", "empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, value)
		})
	}
}

func TestStoreRejectsEmptyKeys(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Put(ctx, "", "k", nil), types.ErrStoreNamespaceEmpty)
			assert.ErrorIs(t, store.Put(ctx, "content", "", nil), types.ErrStoreKeyEmpty)
			assert.ErrorIs(t, store.DeleteAll(ctx, ""), types.ErrStoreNamespaceEmpty)
		})
	}
}

func TestSetStoreDeduplicates(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		sets, ok := store.(types.SetStore)
		if !ok {
			continue
		}

		t.Run(name, func(t *testing.T) {
			require.NoError(t, sets.SetAdd(ctx, "content_tags", "news", "a", "b"))
			require.NoError(t, sets.SetAdd(ctx, "content_tags", "news", "b", "c"))

			members, err := sets.SetMembers(ctx, "content_tags", "news")
			require.NoError(t, err)
			sort.Strings(members)
			assert.Equal(t, []string{"a", "b", "c"}, members)

			require.NoError(t, store.Delete(ctx, "content_tags", "news"))
			members, err = sets.SetMembers(ctx, "content_tags", "news")
			require.NoError(t, err)
			assert.Empty(t, members)
		})
	}
}

func TestMemoryStoreMaxEntries(t *testing.T) {
	ctx := context.Background()

	store, err := NewMemoryStore(logger.NewNop(), &types.StoreConfig{
		Type:   "memory",
		Config: map[string]interface{}{"max_entries": 1},
	})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "content", "a", []byte("1")))
	require.NoError(t, store.Put(ctx, "content", "a", []byte("2")))

	err = store.Put(ctx, "content", "b", []byte("3"))
	require.Error(t, err)

	var backendErr *types.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, "put", backendErr.Op)
	assert.ErrorIs(t, err, types.ErrStoreOperation)

	require.NoError(t, store.Delete(ctx, "content", "a"))
	require.NoError(t, store.Put(ctx, "content", "b", []byte("3")))
	assert.Equal(t, 1, store.Len("content"))
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()

	store, err := NewMemoryStore(logger.NewNop(), nil)
	require.NoError(t, err)

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "content", "k", value))
	value[0] = 'x'

	got, _, err := store.Get(ctx, "content", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, _, err := store.Get(ctx, "content", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewMemoryStore(logger.NewNop(), nil)
	require.NoError(t, err)

	assert.False(t, store.IsRunning())
	require.NoError(t, store.Start())
	assert.True(t, store.IsRunning())
	assert.ErrorIs(t, store.Start(), types.ErrServerAlreadyRunning)
	require.NoError(t, store.Stop())
	assert.ErrorIs(t, store.Stop(), types.ErrServerNotRunning)
}
