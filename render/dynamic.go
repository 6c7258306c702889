package render

import (
	"context"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/component"
	"github.com/saiset-co/sai-render/stack"
	"github.com/saiset-co/sai-render/types"
)

// DynamicCall runs route routeID of the component behind intent and returns
// the data it left under types.DataCurrentComponent. With switchContext the
// call runs in its own frame, popped again before DynamicCall returns.
func (p *Pipeline) DynamicCall(ctx context.Context, intent interface{}, routeID string, args map[string]string, switchContext bool) (data interface{}, err error) {
	ctx, span := p.tracer.Start(ctx, "render.DynamicCall", trace.WithAttributes(
		attribute.String("render.route", routeID),
	))
	defer func() { p.endSpan(span, err) }()

	ctx, s := ensureStack(ctx, p.stackDefaults())

	req, err := p.resolver.Resolve(ctx, intent)
	if err != nil {
		return nil, err
	}

	if !switchContext {
		data, err = p.dynamicCall(ctx, s, req, routeID, args)
		if err == nil {
			propagateTags(s, chainTags(req))
		}
		return data, err
	}

	inner, release := s.Enter(req)
	defer func() {
		release()
		propagateTags(s, inner.Tags, chainTags(req))
	}()

	return p.dynamicCall(ctx, s, req, routeID, args)
}

func (p *Pipeline) dynamicCall(ctx context.Context, s *stack.Stack, req *types.Request, routeID string, args map[string]string) (interface{}, error) {
	if p.config.CoreComponentName != "" {
		core, err := p.registry.Get(p.config.CoreComponentName)
		if err != nil {
			return nil, err
		}
		req.AddComponentToChain(core)
	}

	if err := req.SetMethod(types.MethodGet); err != nil {
		return nil, err
	}

	if err := component.Inject(ctx, req, types.InjectProcess); err != nil {
		return nil, err
	}

	routes, ids := component.Routes(req)
	route, ok := routes[routeID]
	if !ok {
		return nil, &types.RouteNotFoundError{Route: routeID, Available: ids}
	}

	if err := req.SetRoute(route, args); err != nil {
		return nil, err
	}

	dispatchCtx := ctx
	if frame, err := s.Current(); err == nil {
		dispatchCtx = stack.WithFrame(ctx, frame)
	}

	if err := p.dispatcher.Dispatch(dispatchCtx, req); err != nil {
		return nil, err
	}

	data, _ := req.DataItem(types.DataCurrentComponent)
	return data, nil
}

// DynamicLoad runs route routeID of intent in a new frame, then templates
// and displays its content element into w. The outer frame is restored
// whether or not the load succeeds.
func (p *Pipeline) DynamicLoad(ctx context.Context, intent interface{}, routeID string, args map[string]string, w io.Writer) (err error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "render.DynamicLoad", trace.WithAttributes(
		attribute.String("render.route", routeID),
	))
	defer func() {
		p.endSpan(span, err)
		p.observe("dynamic_load", start, err)
	}()

	ctx, s := ensureStack(ctx, p.stackDefaults())

	req, err := p.resolver.Resolve(ctx, intent)
	if err != nil {
		return err
	}

	inner, release := s.Enter(req)
	defer func() {
		release()
		propagateTags(s, inner.Tags, chainTags(req))
		p.restoreTranslationDomain(s)
	}()

	if _, err := p.dynamicCall(ctx, s, req, routeID, args); err != nil {
		return err
	}

	if err := p.Template(ctx, req, ElementContent); err != nil {
		return err
	}

	if err := p.Display(ctx, req, w); err != nil {
		return err
	}

	p.logger.Debug("Dynamic load rendered",
		zap.String("component", req.ComponentName()),
		zap.String("route", routeID),
		zap.Int("depth", s.Depth()))

	return nil
}

func (p *Pipeline) DynamicLoadString(ctx context.Context, intent interface{}, routeID string, args map[string]string) (string, error) {
	var b strings.Builder
	if err := p.DynamicLoad(ctx, intent, routeID, args, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// propagateTags adds the tags of a finished nested render to the frame it ran
// in, so invalidating an embedded component also evicts the enclosing page.
func propagateTags(s *stack.Stack, tagSets ...[]string) {
	outer, err := s.Current()
	if err != nil {
		return
	}
	for _, tags := range tagSets {
		outer.AddTags(tags...)
	}
}

func (p *Pipeline) restoreTranslationDomain(s *stack.Stack) {
	outer, err := s.Current()
	if err != nil || outer.Request == nil {
		return
	}
	outer.TranslationDomain = outer.Request.ComponentName()
}

func (p *Pipeline) stackDefaults() stack.Defaults {
	return stack.Defaults{
		CacheExpiry:  p.config.ContentTTL,
		CacheEnabled: p.config.ContentCache,
	}
}

// ensureStack returns the stack bound to ctx, binding a fresh one when the
// caller is not inside a render.
func ensureStack(ctx context.Context, defaults stack.Defaults) (context.Context, *stack.Stack) {
	if s, ok := stack.FromContext(ctx); ok {
		return ctx, s
	}
	s := stack.New(defaults)
	return stack.NewContext(ctx, s), s
}
