package dispatcher

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/saiset-co/sai-render/types"
)

// ComponentSource looks components up by name.
type ComponentSource interface {
	Get(name string) (types.Component, error)
}

// Resolver turns intents into requests. An intent is a component name, a
// mounted path, a types.Component or an existing *types.Request.
type Resolver struct {
	components ComponentSource

	mu     sync.RWMutex
	mounts map[string]string
}

var _ types.IntentResolver = (*Resolver)(nil)

func NewResolver(components ComponentSource) *Resolver {
	return &Resolver{
		components: components,
		mounts:     make(map[string]string),
	}
}

// Mount binds every path below prefix to the named component.
func (r *Resolver) Mount(prefix, component string) {
	prefix = "/" + strings.Trim(prefix, "/")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts[prefix] = component
}

func (r *Resolver) Resolve(_ context.Context, intent interface{}) (*types.Request, error) {
	switch v := intent.(type) {
	case *types.Request:
		if v == nil {
			return nil, types.Errorf(types.ErrIntentUnresolved, "nil request")
		}
		return v, nil
	case types.Component:
		return types.NewRequest(v.Name(), v), nil
	case string:
		return r.resolveString(v)
	default:
		return nil, types.Errorf(types.ErrIntentUnresolved, "unsupported intent %T", intent)
	}
}

func (r *Resolver) resolveString(intent string) (*types.Request, error) {
	if intent == "" {
		return nil, types.Errorf(types.ErrIntentUnresolved, "empty intent")
	}

	if !strings.HasPrefix(intent, "/") {
		c, err := r.components.Get(intent)
		if err != nil {
			return nil, types.Errorf(types.ErrIntentUnresolved, "%s: %v", intent, err)
		}
		return types.NewRequest(intent, c), nil
	}

	name, ok := r.match(intent)
	if !ok {
		return nil, types.Errorf(types.ErrIntentUnresolved, "no component mounted at %s", intent)
	}

	c, err := r.components.Get(name)
	if err != nil {
		return nil, types.Errorf(types.ErrIntentUnresolved, "%s: %v", intent, err)
	}

	return types.NewRequest(intent, c), nil
}

// match finds the longest mount prefix of path.
func (r *Resolver) match(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.mounts))
	for prefix := range r.mounts {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	for _, prefix := range prefixes {
		if prefix == "/" || path == prefix || strings.HasPrefix(path, prefix+"/") {
			return r.mounts[prefix], true
		}
	}
	return "", false
}
