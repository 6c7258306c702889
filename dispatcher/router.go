package dispatcher

import (
	"strings"

	"github.com/saiset-co/sai-render/component"
	"github.com/saiset-co/sai-render/types"
)

// MatchRoute selects the first route of the request chain whose path
// pattern matches the request path and binds its {placeholder} segments as
// route arguments. Components later in the chain are tried first.
func MatchRoute(req *types.Request) error {
	routes, ids := component.Routes(req)

	for i := len(ids) - 1; i >= 0; i-- {
		route := routes[ids[i]]
		if route.Path == "" {
			continue
		}
		if args, ok := matchPath(route.Path, req.Path()); ok {
			return req.SetRoute(route, args)
		}
	}

	return &types.RouteNotFoundError{Route: req.Path(), Available: ids}
}

func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := split(pattern)
	pathParts := split(path)

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	args := make(map[string]string)
	for i, part := range patternParts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			args[part[1:len(part)-1]] = pathParts[i]
			continue
		}
		if part != pathParts[i] {
			return nil, false
		}
	}

	return args, true
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
