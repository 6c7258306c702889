package types

import (
	"context"
)

type InjectStage string

const (
	InjectProcess  InjectStage = "process"
	InjectTemplate InjectStage = "template"
)

// Component supplies named template elements. ok is false when the
// component does not provide the element.
type Component interface {
	Name() string
	Element(ctx context.Context, name string) (content string, ok bool, err error)
}

type RouteProvider interface {
	Routes() []*Route
}

type Injector interface {
	Inject(ctx context.Context, req *Request, stage InjectStage) error
}

// IntentResolver turns a component name, a Component, a *Request or a path
// into a fresh Request.
type IntentResolver interface {
	Resolve(ctx context.Context, intent interface{}) (*Request, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) error
}

type TranslateFunc func(msgid string, args ...interface{}) string

type TemplatingEngine interface {
	Name() string
	Execute(ctx context.Context, source, content string, data map[string]interface{}, translate TranslateFunc) (string, error)
}

type EngineCreator func() (TemplatingEngine, error)
