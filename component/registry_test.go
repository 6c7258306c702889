package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/types"
)

func TestRegistry(t *testing.T) {
	news := NewStatic("news", nil)
	registry, err := NewRegistry(news, NewStatic("core", nil))
	require.NoError(t, err)

	got, err := registry.Get("news")
	require.NoError(t, err)
	assert.Same(t, news, got)

	_, err = registry.Get("blog")
	assert.ErrorIs(t, err, types.ErrComponentNotFound)

	assert.ErrorIs(t, registry.Register(NewStatic("news", nil)), types.ErrComponentExists)
	assert.ErrorIs(t, registry.Register(nil), types.ErrInvalidParameter)
	assert.Equal(t, []string{"core", "news"}, registry.Names())
}

func TestRoutesLaterComponentOverrides(t *testing.T) {
	core := NewStatic("core", nil)
	core.AddRoute(&types.Route{ID: "index", Path: "/core"})
	core.AddRoute(&types.Route{ID: "about", Path: "/about"})

	news := NewStatic("news", nil)
	news.AddRoute(&types.Route{ID: "index", Path: "/news"})
	news.AddRoute(&types.Route{ID: "latest", Path: "/latest"})

	req := types.NewRequest("/", core)
	req.AddComponentToChain(news)

	routes, ids := Routes(req)
	assert.Equal(t, []string{"index", "about", "latest"}, ids)
	assert.Equal(t, "/news", routes["index"].Path)
}

func TestInjectRunsChainInOrderOnce(t *testing.T) {
	var calls []string
	record := func(name string) types.Injector {
		return InjectorFunc(func(_ context.Context, req *types.Request, stage types.InjectStage) error {
			calls = append(calls, name+":"+string(stage))
			return nil
		})
	}

	core := NewStatic("core", nil)
	core.AddInjector(record("core"))
	news := NewStatic("news", nil)
	news.AddInjector(record("news"))

	req := types.NewRequest("/", news)
	req.AddComponentToChain(core)
	req.AddComponentToChain(news)

	require.NoError(t, Inject(context.Background(), req, types.InjectProcess))
	assert.Equal(t, []string{"news:process", "core:process"}, calls)
}

func TestInjectStopsOnError(t *testing.T) {
	failing := NewStatic("news", nil)
	failing.AddInjector(InjectorFunc(func(context.Context, *types.Request, types.InjectStage) error {
		return assert.AnError
	}))

	err := Inject(context.Background(), types.NewRequest("/", failing), types.InjectTemplate)
	assert.ErrorIs(t, err, assert.AnError)
}
