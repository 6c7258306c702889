package types

import (
	"context"
	"net/url"
	"sort"
	"strings"
)

const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
	MethodPost = "POST"
)

// DataCurrentComponent is the data item a dispatched route leaves its output under.
const DataCurrentComponent = "current_component"

type Controller func(ctx context.Context, req *Request) error

type Route struct {
	ID              string
	Path            string
	Controller      Controller
	TemplateAliases map[string]string
}

// Request is one logical render, top-level or dynamic. Method, route and
// arguments are fixed once Freeze is called; Data keeps accumulating.
type Request struct {
	path        string
	component   Component
	chain       []Component
	method      string
	route       *Route
	arguments   map[string]string
	data        map[string]interface{}
	element     string
	subtemplate string
	frozen      bool
}

func NewRequest(path string, component Component) *Request {
	req := &Request{
		path:      path,
		component: component,
		method:    MethodGet,
		arguments: map[string]string{},
		data:      map[string]interface{}{},
	}
	if component != nil {
		req.chain = append(req.chain, component)
	}
	return req
}

func (r *Request) Path() string {
	return r.path
}

// Component is the component the request was resolved to.
func (r *Request) Component() Component {
	return r.component
}

func (r *Request) ComponentName() string {
	if r.component == nil {
		return ""
	}
	return r.component.Name()
}

func (r *Request) AddComponentToChain(component Component) {
	if component == nil {
		return
	}
	r.chain = append(r.chain, component)
}

// PrependComponentToChain puts component below every component already in
// the chain, so any of them overrides its elements.
func (r *Request) PrependComponentToChain(component Component) {
	if component == nil {
		return
	}
	r.chain = append([]Component{component}, r.chain...)
}

// HasComponent reports whether a component named name is in the chain.
func (r *Request) HasComponent(name string) bool {
	for _, c := range r.chain {
		if c.Name() == name {
			return true
		}
	}
	return false
}

// Chain returns a copy of the component chain in append order.
func (r *Request) Chain() []Component {
	chain := make([]Component, len(r.chain))
	copy(chain, r.chain)
	return chain
}

func (r *Request) Method() string {
	return r.method
}

func (r *Request) SetMethod(method string) error {
	if r.frozen {
		return Errorf(ErrRequestFrozen, "set method %s", method)
	}
	r.method = strings.ToUpper(method)
	return nil
}

func (r *Request) Route() *Route {
	return r.route
}

func (r *Request) SetRoute(route *Route, arguments map[string]string) error {
	if r.frozen {
		return Errorf(ErrRequestFrozen, "set route %s", route.ID)
	}
	r.route = route
	r.arguments = make(map[string]string, len(arguments))
	for k, v := range arguments {
		r.arguments[k] = v
	}
	return nil
}

func (r *Request) Arguments() map[string]string {
	args := make(map[string]string, len(r.arguments))
	for k, v := range r.arguments {
		args[k] = v
	}
	return args
}

func (r *Request) Argument(name string) string {
	return r.arguments[name]
}

func (r *Request) Freeze() {
	r.frozen = true
}

func (r *Request) Frozen() bool {
	return r.frozen
}

func (r *Request) Data() map[string]interface{} {
	return r.data
}

func (r *Request) DataItem(key string) (interface{}, bool) {
	v, ok := r.data[key]
	return v, ok
}

func (r *Request) SetDataItem(key string, value interface{}) {
	r.data[key] = value
}

// Element is the template element the request was last templated with.
func (r *Request) Element() string {
	if r.element == "" {
		return "root"
	}
	return r.element
}

func (r *Request) SetElement(element string) {
	r.element = element
}

func (r *Request) Subtemplate() string {
	return r.subtemplate
}

func (r *Request) SetSubtemplate(subtemplate string) {
	r.subtemplate = subtemplate
}

// Identifier is the cache key of the request: method, path, route and sorted
// arguments. Render-time data never takes part in it.
func (r *Request) Identifier() string {
	var b strings.Builder
	b.WriteString(r.method)
	b.WriteByte(':')
	b.WriteString(r.path)
	b.WriteByte(':')
	if r.route != nil {
		b.WriteString(r.route.ID)
	}

	if len(r.arguments) > 0 {
		keys := make([]string, 0, len(r.arguments))
		for k := range r.arguments {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(r.arguments[k]))
		}
	}

	return b.String()
}

// TemplateKey addresses the resolved template of the request's current element.
func (r *Request) TemplateKey() string {
	return r.Identifier() + "#" + r.Element()
}
