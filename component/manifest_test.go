package component

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/stack"
	"github.com/saiset-co/sai-render/types"
)

func TestLoadRoutes(t *testing.T) {
	fsys := fstest.MapFS{
		"news/routes.yaml": {Data: []byte(`
- id: index
  path: /news
  data:
    title: News
- id: latest
  path: /news/latest/{number}
  aliases:
    content: latest
  tags: [news-feed]
`)},
		"news/content.html": {Data: []byte("list")},
	}

	d := NewDirectory("news", fsys, "news")
	n, err := d.LoadRoutes()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	routes := d.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "latest", routes[1].ID)
	assert.Equal(t, map[string]string{"content": "latest"}, routes[1].TemplateAliases)

	req := types.NewRequest("/news/latest/3", d)
	require.NoError(t, req.SetRoute(routes[1], map[string]string{"number": "3"}))

	s := stack.New(stack.Defaults{})
	frame, release := s.Enter(req)
	defer release()

	require.NoError(t, routes[1].Controller(stack.WithFrame(context.Background(), frame), req))
	assert.True(t, frame.HasTag("news-feed"))

	output, ok := req.DataItem(types.DataCurrentComponent)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"number": "3"}, output.(map[string]interface{})["args"])

	require.NoError(t, routes[0].Controller(context.Background(), types.NewRequest("/news", d)))
}

func TestLoadRoutesWithoutManifest(t *testing.T) {
	d := NewDirectory("plain", fstest.MapFS{"plain/root.html": {Data: []byte("x")}}, "plain")

	n, err := d.LoadRoutes()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, d.Routes())
}

func TestLoadRoutesRejectsInvalidManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		target   error
	}{
		{name: "not a list", manifest: "id: x", target: types.ErrConfigParseFailed},
		{name: "missing id", manifest: "- path: /x", target: types.ErrConfigValidateFailed},
		{name: "relative path", manifest: "- id: x\n  path: x", target: types.ErrConfigValidateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirectory("bad", fstest.MapFS{"routes.yaml": {Data: []byte(tt.manifest)}}, ".")
			_, err := d.LoadRoutes()
			assert.ErrorIs(t, err, tt.target)
		})
	}
}
