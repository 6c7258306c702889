package uimessages

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

const (
	Namespace        = "uimessages"
	AnonymousSession = "anonymous"
)

// Queue keeps UI messages per session in the KV store until a page
// takes them for display.
type Queue struct {
	store  types.KVStore
	logger types.Logger
	locks  sync.Map
}

func NewQueue(store types.KVStore, logger types.Logger) *Queue {
	return &Queue{store: store, logger: logger}
}

// Add appends messages to the session queue.
func (q *Queue) Add(ctx context.Context, session string, messages ...types.UIMessage) error {
	if len(messages) == 0 {
		return nil
	}
	session = normalize(session)

	lock := q.lockFor(session)
	lock.Lock()
	defer lock.Unlock()

	queued, err := q.read(ctx, session)
	if err != nil {
		return err
	}

	raw, err := utils.Marshal(append(queued, messages...))
	if err != nil {
		return types.NewBackendError("encode", Namespace, session, err)
	}

	if err := q.store.Put(ctx, Namespace, session, raw); err != nil {
		return err
	}

	q.logger.Debug("UI messages stored", zap.String("session", session), zap.Int("count", len(messages)))
	return nil
}

func (q *Queue) Peek(ctx context.Context, session string) ([]types.UIMessage, error) {
	return q.read(ctx, normalize(session))
}

// Take returns and clears the session queue.
func (q *Queue) Take(ctx context.Context, session string) ([]types.UIMessage, error) {
	session = normalize(session)

	lock := q.lockFor(session)
	lock.Lock()
	defer lock.Unlock()

	messages, err := q.read(ctx, session)
	if err != nil || len(messages) == 0 {
		return messages, err
	}

	if err := q.store.Delete(ctx, Namespace, session); err != nil {
		return nil, err
	}
	return messages, nil
}

func (q *Queue) read(ctx context.Context, session string) ([]types.UIMessage, error) {
	raw, ok, err := q.store.Get(ctx, Namespace, session)
	if err != nil || !ok {
		return nil, err
	}

	var messages []types.UIMessage
	if err := utils.Unmarshal(raw, &messages); err != nil {
		return nil, types.NewBackendError("decode", Namespace, session, err)
	}
	return messages, nil
}

func (q *Queue) lockFor(session string) *sync.Mutex {
	lock, _ := q.locks.LoadOrStore(session, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func normalize(session string) string {
	if session == "" {
		return AnonymousSession
	}
	return session
}

type sessionKey struct{}

// WithSession binds the UI message session of the caller to ctx.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func SessionFromContext(ctx context.Context) string {
	session, _ := ctx.Value(sessionKey{}).(string)
	return normalize(session)
}
