package stack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/types"
)

type named string

func (n named) Name() string { return string(n) }

func (n named) Element(context.Context, string) (string, bool, error) { return "", false, nil }

func TestStackCreateDelete(t *testing.T) {
	s := New(Defaults{CacheExpiry: time.Minute, CacheEnabled: true})

	_, err := s.Current()
	assert.ErrorIs(t, err, types.ErrEmptyStack)
	assert.ErrorIs(t, s.Delete(), types.ErrEmptyStack)

	req := types.NewRequest("/news", named("news"))
	outer := s.Create(req)
	assert.Equal(t, "news", outer.TranslationDomain)
	assert.Equal(t, time.Minute, outer.CacheExpiry)
	assert.True(t, outer.CacheEnabled)
	assert.Equal(t, StateStart, outer.State())

	inner := s.Create(nil)
	assert.Same(t, req, inner.Request)
	assert.NotEqual(t, outer.ID, inner.ID)
	assert.Equal(t, 2, s.Depth())

	require.NoError(t, s.Delete())
	current, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, outer, current)
}

func TestInnerFrameDoesNotTouchOuter(t *testing.T) {
	s := New(Defaults{})

	outer := s.Create(types.NewRequest("/", named("site")))
	outer.AddTags("site")
	outer.ETag = "outer"

	inner := s.Create(types.NewRequest("/news", named("news")))
	inner.AddTags("news")
	inner.ETag = "inner"
	inner.TranslationDomain = "other"
	require.NoError(t, s.Delete())

	current, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, []string{"site"}, current.Tags)
	assert.Equal(t, "outer", current.ETag)
	assert.Equal(t, "site", current.TranslationDomain)
}

func TestEnterReleasesOnError(t *testing.T) {
	s := New(Defaults{})
	outer := s.Create(types.NewRequest("/", named("site")))

	sub := func() error {
		_, release := s.Enter(types.NewRequest("/inner", named("inner")))
		defer release()

		// a frame leaked by a nested render must not survive the release
		s.Create(nil)
		return errors.New("boom")
	}

	require.Error(t, sub())

	current, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, outer, current)
	assert.Equal(t, 1, s.Depth())
}

func TestEnterReleasesOnPanic(t *testing.T) {
	s := New(Defaults{})
	outer := s.Create(types.NewRequest("/", named("site")))

	assert.Panics(t, func() {
		_, release := s.Enter(nil)
		defer release()
		panic("engine exploded")
	})

	current, err := s.Current()
	require.NoError(t, err)
	assert.Same(t, outer, current)
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := New(Defaults{})
	s.Create(types.NewRequest("/", named("site")))

	_, release := s.Enter(nil)
	release()
	release()
	assert.Equal(t, 1, s.Depth())

	_, release = s.Enter(nil)
	require.NoError(t, s.Delete())
	s.Create(nil)
	release()
	assert.Equal(t, 2, s.Depth())
}

func TestFrameTagsDeduplicate(t *testing.T) {
	f := &Frame{}
	f.AddTags("a", "b", "a", "")
	f.AddTags("b")
	assert.Equal(t, []string{"a", "b"}, f.Tags)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	_, ok := FromContext(ctx)
	assert.False(t, ok)
	_, ok = FrameFromContext(ctx)
	assert.False(t, ok)

	s := New(Defaults{})
	frame := s.Create(nil)
	ctx = WithFrame(NewContext(ctx, s), frame)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	gotFrame, ok := FrameFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, frame, gotFrame)
}
