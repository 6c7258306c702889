package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/component"
	"github.com/saiset-co/sai-render/logger"
	"github.com/saiset-co/sai-render/types"
)

func TestManualDispatchFreezesRequest(t *testing.T) {
	req := types.NewRequest("/news", component.NewStatic("news", nil))
	require.NoError(t, req.SetRoute(&types.Route{
		ID: "latest",
		Controller: func(_ context.Context, req *types.Request) error {
			req.SetDataItem(types.DataCurrentComponent, map[string]interface{}{"count": req.Argument("count")})
			return req.SetMethod("POST")
		},
	}, map[string]string{"count": "3"}))

	err := NewManual(logger.NewNop()).Dispatch(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrRequestFrozen)
	assert.Equal(t, types.MethodGet, req.Method())

	data, ok := req.DataItem(types.DataCurrentComponent)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"count": "3"}, data)
}

func TestManualDispatchNeedsController(t *testing.T) {
	d := NewManual(logger.NewNop())
	req := types.NewRequest("/news", component.NewStatic("news", nil))

	assert.ErrorIs(t, d.Dispatch(context.Background(), req), types.ErrRouteNotFound)

	require.NoError(t, req.SetRoute(&types.Route{ID: "index"}, nil))
	assert.ErrorIs(t, d.Dispatch(context.Background(), req), types.ErrRouteHasNoHandler)
}

func TestResolver(t *testing.T) {
	news := component.NewStatic("news", nil)
	site := component.NewStatic("site", nil)
	registry, err := component.NewRegistry(news, site)
	require.NoError(t, err)

	resolver := NewResolver(registry)
	resolver.Mount("/", "site")
	resolver.Mount("/news/", "news")
	ctx := context.Background()

	req, err := resolver.Resolve(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, "news", req.ComponentName())

	req, err = resolver.Resolve(ctx, "/news/2024/hello")
	require.NoError(t, err)
	assert.Equal(t, "news", req.ComponentName())
	assert.Equal(t, "/news/2024/hello", req.Path())

	req, err = resolver.Resolve(ctx, "/newsletter")
	require.NoError(t, err)
	assert.Equal(t, "site", req.ComponentName())

	req, err = resolver.Resolve(ctx, types.Component(news))
	require.NoError(t, err)
	assert.Same(t, news, req.Component())

	existing := types.NewRequest("/x", site)
	req, err = resolver.Resolve(ctx, existing)
	require.NoError(t, err)
	assert.Same(t, existing, req)

	_, err = resolver.Resolve(ctx, "blog")
	assert.ErrorIs(t, err, types.ErrIntentUnresolved)

	_, err = resolver.Resolve(ctx, 42)
	assert.ErrorIs(t, err, types.ErrIntentUnresolved)
}

func TestResolverWithoutMounts(t *testing.T) {
	registry, err := component.NewRegistry()
	require.NoError(t, err)

	_, err = NewResolver(registry).Resolve(context.Background(), "/anything")
	assert.ErrorIs(t, err, types.ErrIntentUnresolved)
}
