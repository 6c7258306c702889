package uimessages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/cache"
	"github.com/saiset-co/sai-render/logger"
	"github.com/saiset-co/sai-render/types"
)

func TestQueueAddTake(t *testing.T) {
	store, err := cache.NewMemoryStore(logger.NewNop(), nil)
	require.NoError(t, err)
	q := NewQueue(store, logger.NewNop())
	ctx := context.Background()

	saved := types.UIMessage{Title: "News", Message: "Article saved", Type: "ok"}
	failed := types.UIMessage{Title: "News", Message: "Upload failed", Type: "error"}

	require.NoError(t, q.Add(ctx, "s1", saved))
	require.NoError(t, q.Add(ctx, "s1", failed))
	require.NoError(t, q.Add(ctx, "s2"))

	peeked, err := q.Peek(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []types.UIMessage{saved, failed}, peeked)

	taken, err := q.Take(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []types.UIMessage{saved, failed}, taken)

	taken, err = q.Take(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, taken)
}

func TestSessionFromContext(t *testing.T) {
	assert.Equal(t, AnonymousSession, SessionFromContext(context.Background()))
	assert.Equal(t, "abc", SessionFromContext(WithSession(context.Background(), "abc")))
}
