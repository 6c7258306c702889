package component

import (
	"context"
	"sort"
	"sync"

	"github.com/saiset-co/sai-render/types"
)

// Registry maps component names to components.
type Registry struct {
	mu         sync.RWMutex
	components map[string]types.Component
}

func NewRegistry(components ...types.Component) (*Registry, error) {
	r := &Registry{components: make(map[string]types.Component)}
	for _, c := range components {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(c types.Component) error {
	if c == nil || c.Name() == "" {
		return types.Errorf(types.ErrInvalidParameter, "component must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[c.Name()]; exists {
		return types.Errorf(types.ErrComponentExists, "name: %s", c.Name())
	}
	r.components[c.Name()] = c
	return nil
}

func (r *Registry) Get(name string) (types.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.components[name]
	if !ok {
		return nil, types.Errorf(types.ErrComponentNotFound, "name: %s", name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Directories returns every registered Directory component.
func (r *Registry) Directories() []*Directory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dirs []*Directory
	for _, c := range r.components {
		if d, ok := c.(*Directory); ok {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Routes collects the routes of every component in the request chain. A
// later component overrides an earlier route with the same id. ids keeps
// first-definition order.
func Routes(req *types.Request) (routes map[string]*types.Route, ids []string) {
	routes = make(map[string]*types.Route)

	for _, c := range req.Chain() {
		provider, ok := c.(types.RouteProvider)
		if !ok {
			continue
		}
		for _, route := range provider.Routes() {
			if _, exists := routes[route.ID]; !exists {
				ids = append(ids, route.ID)
			}
			routes[route.ID] = route
		}
	}

	return routes, ids
}

// Inject runs the injectors of every component in the request chain, in
// chain order. A component appearing twice runs once.
func Inject(ctx context.Context, req *types.Request, stage types.InjectStage) error {
	seen := make(map[string]struct{})

	for _, c := range req.Chain() {
		injector, ok := c.(types.Injector)
		if !ok {
			continue
		}
		if _, done := seen[c.Name()]; done {
			continue
		}
		seen[c.Name()] = struct{}{}

		if err := injector.Inject(ctx, req, stage); err != nil {
			return types.WrapError(err, "inject "+string(stage)+" "+c.Name())
		}
	}

	return nil
}
