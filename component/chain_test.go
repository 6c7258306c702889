package component

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/types"
)

func newsRequest() *types.Request {
	core := NewStatic("core", map[string]string{
		"root":   "<html><mgd:include>content</mgd:include></html>",
		"header": `<h1><mgd:include class="title">title</mgd:include></h1>`,
		"title":  "Site",
	})
	news := NewStatic("news", map[string]string{
		"content":        "<mgd:include>header</mgd:include><p>news</p>",
		"latest-content": "<ul>latest</ul>",
	})

	req := types.NewRequest("/news", core)
	req.AddComponentToChain(news)
	return req
}

func TestChainFallsBackThroughComponents(t *testing.T) {
	chain := NewChain(0)

	got, err := chain.Element(context.Background(), newsRequest(), "root")
	require.NoError(t, err)
	assert.Equal(t, "<html><h1>Site</h1><p>news</p></html>", got)
}

func TestChainTopmostComponentWins(t *testing.T) {
	req := newsRequest()
	req.AddComponentToChain(NewStatic("theme", map[string]string{"title": "Themed"}))

	got, err := NewChain(0).Element(context.Background(), req, "header")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Themed</h1>", got)
}

func TestChainRawKeepsIncludes(t *testing.T) {
	got, err := NewChain(0).Raw(context.Background(), newsRequest(), "content")
	require.NoError(t, err)
	assert.Equal(t, "<mgd:include>header</mgd:include><p>news</p>", got)
}

func TestChainAppliesRouteAliases(t *testing.T) {
	req := newsRequest()
	require.NoError(t, req.SetRoute(&types.Route{
		ID:              "latest",
		TemplateAliases: map[string]string{"content": "latest-content"},
	}, nil))

	got, err := NewChain(0).Element(context.Background(), req, "root")
	require.NoError(t, err)
	assert.Equal(t, "<html><ul>latest</ul></html>", got)
}

func TestChainElementNotFound(t *testing.T) {
	_, err := NewChain(0).Element(context.Background(), newsRequest(), "sidebar")
	require.Error(t, err)

	var notFound *types.ElementNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "sidebar", notFound.Element)
	assert.Equal(t, []string{"core", "news"}, notFound.Chain)
	assert.ErrorIs(t, err, types.ErrElementNotFound)
}

func TestChainMissingIncludeFails(t *testing.T) {
	req := types.NewRequest("/", NewStatic("site", map[string]string{
		"root": "<mgd:include>missing</mgd:include>",
	}))

	_, err := NewChain(0).Element(context.Background(), req, "root")
	assert.ErrorIs(t, err, types.ErrElementNotFound)
}

func TestChainDetectsCycles(t *testing.T) {
	req := types.NewRequest("/", NewStatic("site", map[string]string{
		"a": "<mgd:include>b</mgd:include>",
		"b": "x<mgd:include>a</mgd:include>",
	}))

	_, err := NewChain(0).Element(context.Background(), req, "a")
	require.Error(t, err)

	var cyclic *types.CyclicIncludeError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, []string{"a", "b", "a"}, cyclic.Path)
	assert.ErrorIs(t, err, types.ErrCyclicInclude)
}

func TestChainAllowsRepeatedSiblingIncludes(t *testing.T) {
	req := types.NewRequest("/", NewStatic("site", map[string]string{
		"root": "<mgd:include>sep</mgd:include>|<mgd:include>sep</mgd:include>",
		"sep":  "-",
	}))

	got, err := NewChain(0).Element(context.Background(), req, "root")
	require.NoError(t, err)
	assert.Equal(t, "-|-", got)
}

func TestChainDepthBound(t *testing.T) {
	req := types.NewRequest("/", NewStatic("site", map[string]string{
		"a": "<mgd:include>b</mgd:include>",
		"b": "<mgd:include>c</mgd:include>",
		"c": "<mgd:include>d</mgd:include>",
		"d": "leaf",
	}))

	_, err := NewChain(2).Element(context.Background(), req, "a")
	assert.ErrorIs(t, err, types.ErrCyclicInclude)

	got, err := NewChain(4).Element(context.Background(), req, "a")
	require.NoError(t, err)
	assert.Equal(t, "leaf", got)
}

func TestDirectoryComponent(t *testing.T) {
	fsys := fstest.MapFS{
		"templates/root.html":        {Data: []byte("desktop")},
		"templates/footer.html":      {Data: []byte("footer")},
		"templates/mobile/root.html": {Data: []byte("mobile")},
	}
	dir := NewDirectory("site", fsys, "templates")
	ctx := context.Background()

	got, ok, err := dir.Element(ctx, "root")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "desktop", got)

	mobile := WithSubtemplate(ctx, "mobile")

	got, ok, err = dir.Element(mobile, "root")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mobile", got)

	got, ok, err = dir.Element(mobile, "footer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "footer", got)

	_, ok, err = dir.Element(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = dir.Element(ctx, "../escape")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChainPassesSubtemplate(t *testing.T) {
	fsys := fstest.MapFS{
		"root.html":       {Data: []byte("desktop")},
		"print/root.html": {Data: []byte("print")},
	}
	req := types.NewRequest("/", NewDirectory("site", fsys, ""))
	req.SetSubtemplate("print")

	got, err := NewChain(0).Element(context.Background(), req, "root")
	require.NoError(t, err)
	assert.Equal(t, "print", got)
}
