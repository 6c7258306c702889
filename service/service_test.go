package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-render/component"
	"github.com/saiset-co/sai-render/config"
	"github.com/saiset-co/sai-render/types"
)

func writeSite(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"core/root.html":    "<html><mgd:include>content</mgd:include></html>",
		"core/content.html": "home",
		"core/routes.yaml":  "- id: home\n  path: /\n",
		"news/content.html": "<p>{{ .current_component.title }}</p>",
		"news/routes.yaml":  "- id: index\n  path: /news\n  data:\n    title: Headlines\n",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	return dir
}

func newService(t *testing.T, mutate func(cfg *types.ServiceConfig), components ...types.Component) *Service {
	t.Helper()

	cm, err := config.NewStaticManager(nil)
	require.NoError(t, err)

	cfg := cm.GetConfig()
	cfg.Logger.Level = "error"
	cfg.Render.TemplatesDir = writeSite(t)
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := NewService(context.Background(), cm, components...)
	require.NoError(t, err)

	require.NoError(t, svc.Open())
	t.Cleanup(func() { _ = svc.Close() })

	return svc
}

func get(svc *Service, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodGet)
	ctx.Request.SetRequestURI(path)
	svc.Server().Handler()(ctx)
	return ctx
}

func TestServiceServesDirectoryComponents(t *testing.T) {
	svc := newService(t, nil)

	assert.Equal(t, []string{"core", "news"}, svc.Registry().Names())

	ctx := get(svc, "/news")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "<html><p>Headlines</p></html>", string(ctx.Response.Body()))
	assert.Equal(t, "MISS", string(ctx.Response.Header.Peek("X-Cache")))

	ctx = get(svc, "/news")
	assert.Equal(t, "HIT", string(ctx.Response.Header.Peek("X-Cache")))

	ctx = get(svc, "/")
	assert.Equal(t, "<html>home</html>", string(ctx.Response.Body()))

	ctx = get(svc, "/news/unknown")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestServiceInvalidate(t *testing.T) {
	svc := newService(t, nil)

	get(svc, "/news")
	get(svc, "/")

	ids, err := svc.Invalidate(context.Background(), []string{"news"})
	require.NoError(t, err)
	assert.NotEmpty(t, ids)

	assert.Equal(t, "MISS", string(get(svc, "/news").Response.Header.Peek("X-Cache")))
	assert.Equal(t, "HIT", string(get(svc, "/").Response.Header.Peek("X-Cache")))

	_, err = svc.Invalidate(context.Background(), []string{"core"})
	require.NoError(t, err)
	assert.Equal(t, "MISS", string(get(svc, "/").Response.Header.Peek("X-Cache")))
	assert.Equal(t, "MISS", string(get(svc, "/news").Response.Header.Peek("X-Cache")))

	require.NoError(t, svc.InvalidateAll(context.Background()))
	assert.Equal(t, "MISS", string(get(svc, "/news").Response.Header.Peek("X-Cache")))
}

func TestServiceProgrammaticComponents(t *testing.T) {
	shop := component.NewStatic("shop", map[string]string{"content": "<b>shop</b>"})
	shop.AddRoute(&types.Route{
		ID:         "index",
		Path:       "/shop",
		Controller: func(context.Context, *types.Request) error { return nil },
	})

	svc := newService(t, nil, shop)

	ctx := get(svc, "/shop")
	assert.Equal(t, "<html><b>shop</b></html>", string(ctx.Response.Body()))

	_, err := NewService(context.Background(), svc.config, component.NewStatic("news", nil))
	assert.ErrorIs(t, err, types.ErrComponentExists)
}

func TestServiceRejectsUnknownEngine(t *testing.T) {
	cm, err := config.NewStaticManager(nil)
	require.NoError(t, err)
	cm.GetConfig().Render.Engine = "jinja"
	cm.GetConfig().Render.TemplatesDir = ""

	_, err = NewService(context.Background(), cm)
	assert.ErrorIs(t, err, types.ErrEngineTypeUnknown)
}

func TestServiceStartStop(t *testing.T) {
	svc := newService(t, func(cfg *types.ServiceConfig) {
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = 0
		cfg.Scheduler.Enabled = true
		cfg.Scheduler.Jobs = []types.ScheduledJob{{Name: "hourly", Schedule: "@hourly"}}
	})

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start() }()

	assert.Eventually(t, svc.IsRunning, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())
	require.NoError(t, <-errCh)

	<-svc.Done()
	assert.False(t, svc.IsRunning())
}
