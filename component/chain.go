package component

import (
	"context"
	"regexp"
	"strings"

	"github.com/saiset-co/sai-render/types"
)

const DefaultMaxIncludeDepth = 32

var includePattern = regexp.MustCompile(`<mgd:include[^>]*>([a-zA-Z0-9_-]+)</mgd:include>`)

// Chain resolves template elements over a request's component chain. The
// most recently appended component that provides an element wins.
type Chain struct {
	maxDepth int
}

func NewChain(maxDepth int) *Chain {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxIncludeDepth
	}
	return &Chain{maxDepth: maxDepth}
}

// Element returns the named element with every include directive expanded.
func (c *Chain) Element(ctx context.Context, req *types.Request, name string) (string, error) {
	return c.resolve(ctx, req, name, nil, true)
}

// Raw returns the named element as stored, include directives untouched.
func (c *Chain) Raw(ctx context.Context, req *types.Request, name string) (string, error) {
	return c.resolve(ctx, req, name, nil, false)
}

func (c *Chain) resolve(ctx context.Context, req *types.Request, name string, path []string, includes bool) (string, error) {
	element := alias(req, name)

	if includes {
		for _, seen := range path {
			if seen == element {
				return "", &types.CyclicIncludeError{Path: append(copyPath(path), element)}
			}
		}
		if len(path) >= c.maxDepth {
			return "", &types.CyclicIncludeError{Path: append(copyPath(path), element)}
		}
	}

	ctx = WithSubtemplate(ctx, req.Subtemplate())
	chain := req.Chain()

	for i := len(chain) - 1; i >= 0; i-- {
		content, ok, err := chain[i].Element(ctx, element)
		if err != nil {
			return "", types.WrapError(err, "component "+chain[i].Name()+" element "+element)
		}
		if !ok {
			continue
		}

		if !includes {
			return content, nil
		}
		return c.expand(ctx, req, content, append(copyPath(path), element))
	}

	return "", &types.ElementNotFoundError{Element: element, Chain: Names(chain)}
}

func (c *Chain) expand(ctx context.Context, req *types.Request, content string, path []string) (string, error) {
	matches := includePattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(content[last:m[0]])

		included, err := c.resolve(ctx, req, content[m[2]:m[3]], path, true)
		if err != nil {
			return "", err
		}
		b.WriteString(included)
		last = m[1]
	}
	b.WriteString(content[last:])

	return b.String(), nil
}

func alias(req *types.Request, name string) string {
	route := req.Route()
	if route == nil {
		return name
	}
	if target, ok := route.TemplateAliases[name]; ok && target != "" {
		return target
	}
	return name
}

func copyPath(path []string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return out
}

// Names lists component names in chain order.
func Names(chain []types.Component) []string {
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name()
	}
	return names
}

type subtemplateKey struct{}

func WithSubtemplate(ctx context.Context, subtemplate string) context.Context {
	return context.WithValue(ctx, subtemplateKey{}, subtemplate)
}

func SubtemplateFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subtemplateKey{}).(string)
	return s
}
