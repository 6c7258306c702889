package engine

import (
	"sync"

	"github.com/saiset-co/sai-render/types"
)

var (
	mu             sync.RWMutex
	customCreators = make(map[string]types.EngineCreator)
)

// Register makes a custom engine available to New under name.
func Register(name string, creator types.EngineCreator) {
	mu.Lock()
	defer mu.Unlock()
	customCreators[name] = creator
}

func New(name string) (types.TemplatingEngine, error) {
	switch name {
	case "", HTMLName:
		return NewHTML(), nil
	case PlainName:
		return NewPlain(), nil
	}

	mu.RLock()
	creator, exists := customCreators[name]
	mu.RUnlock()

	if !exists {
		return nil, types.Errorf(types.ErrEngineTypeUnknown, "engine: %s", name)
	}
	return creator()
}
