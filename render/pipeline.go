package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/cache/module"
	"github.com/saiset-co/sai-render/component"
	"github.com/saiset-co/sai-render/dispatcher"
	"github.com/saiset-co/sai-render/i18n"
	"github.com/saiset-co/sai-render/stack"
	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/uimessages"
)

const (
	ElementRoot    = "root"
	ElementContent = "content"

	tracerName = "github.com/saiset-co/sai-render/render"
)

// Dependencies are the collaborators of a Pipeline. Resolver defaults to a
// dispatcher.Resolver over Registry; Translations, Messages and Metrics are
// optional.
type Dependencies struct {
	Content      *module.ContentCache
	Templates    *module.TemplateCache
	Registry     *component.Registry
	Resolver     types.IntentResolver
	Dispatcher   types.Dispatcher
	Engine       types.TemplatingEngine
	Translations *i18n.Service
	Messages     *uimessages.Queue
	Metrics      types.MetricsManager
}

// Pipeline renders requests: dispatch, template resolution, engine
// execution and content caching. It is safe for concurrent Serve calls;
// every top-level render owns its own context stack.
type Pipeline struct {
	config       *types.RenderConfig
	logger       types.Logger
	metrics      types.MetricsManager
	content      *module.ContentCache
	templates    *module.TemplateCache
	registry     *component.Registry
	resolver     types.IntentResolver
	dispatcher   types.Dispatcher
	engine       types.TemplatingEngine
	translations *i18n.Service
	messages     *uimessages.Queue
	chain        *component.Chain
	tracer       trace.Tracer
}

func NewPipeline(config *types.RenderConfig, logger types.Logger, deps Dependencies) (*Pipeline, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}
	if deps.Content == nil || deps.Templates == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "content and template caches are required")
	}
	if deps.Registry == nil || deps.Dispatcher == nil || deps.Engine == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "registry, dispatcher and engine are required")
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = dispatcher.NewResolver(deps.Registry)
	}

	return &Pipeline{
		config:       config,
		logger:       logger,
		metrics:      deps.Metrics,
		content:      deps.Content,
		templates:    deps.Templates,
		registry:     deps.Registry,
		resolver:     resolver,
		dispatcher:   deps.Dispatcher,
		engine:       deps.Engine,
		translations: deps.Translations,
		messages:     deps.Messages,
		chain:        component.NewChain(config.MaxIncludeDepth),
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// Serve renders req as a top-level page into w. hit reports whether the
// body came from the content cache.
func (p *Pipeline) Serve(ctx context.Context, req *types.Request, w io.Writer) (hit bool, err error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "render.Serve", trace.WithAttributes(
		attribute.String("render.path", req.Path()),
		attribute.String("render.component", req.ComponentName()),
	))
	defer func() {
		p.endSpan(span, err)
		p.observe("serve", start, err)
	}()

	s := stack.New(stack.Defaults{
		CacheExpiry:  p.config.ContentTTL,
		CacheEnabled: p.config.ContentCache,
	})
	ctx = stack.NewContext(ctx, s)

	frame, release := s.Enter(req)
	defer release()
	frame.TopLevel = true

	if req.Subtemplate() == "" {
		req.SetSubtemplate(p.config.Subtemplate)
	}

	if name := p.config.CoreComponentName; name != "" && !req.HasComponent(name) {
		core, err := p.registry.Get(name)
		if err != nil {
			return false, err
		}
		req.PrependComponentToChain(core)
	}

	if req.Route() == nil {
		if err := dispatcher.MatchRoute(req); err != nil {
			return false, err
		}
	}

	identifier := req.Identifier()
	span.SetAttributes(attribute.String("render.identifier", identifier))

	if p.config.ContentCache {
		cached, ok, err := p.content.Lookup(ctx, req.Method(), identifier)
		if err != nil {
			return false, err
		}
		p.countLookup(module.ContentNamespace, ok)

		if ok {
			if req.Method() != types.MethodHead {
				if _, err := w.Write(cached.Body); err != nil {
					return true, types.WrapError(err, "failed to write cached response")
				}
			}
			frame.ETag = cached.ETag
			frame.SetState(stack.StateDone)
			p.logger.Debug("Served from content cache", zap.String("identifier", identifier))
			return true, nil
		}
	}

	if err := component.Inject(ctx, req, types.InjectProcess); err != nil {
		return false, err
	}

	if err := p.dispatcher.Dispatch(stack.WithFrame(ctx, frame), req); err != nil {
		return false, err
	}
	frame.SetState(stack.StateChainResolved)

	if err := p.Template(ctx, req, ElementRoot); err != nil {
		return false, err
	}

	if err := p.Display(ctx, req, w); err != nil {
		return false, err
	}

	frame.SetState(stack.StateDone)
	return false, nil
}

// Template resolves element of req over its component chain and stores the
// result in the template cache. Outside development mode a cached template
// is reused as is.
func (p *Pipeline) Template(ctx context.Context, req *types.Request, element string) (err error) {
	ctx, span := p.tracer.Start(ctx, "render.Template", trace.WithAttributes(
		attribute.String("render.element", element),
	))
	defer func() { p.endSpan(span, err) }()

	if err := component.Inject(ctx, req, types.InjectTemplate); err != nil {
		return err
	}

	req.SetElement(element)
	key := req.TemplateKey()

	resolve := func() (string, error) {
		return p.chain.Element(ctx, req, element)
	}

	if p.config.DevelopmentMode {
		content, err := resolve()
		if err != nil {
			return err
		}
		if err := p.templates.Put(ctx, key, content); err != nil {
			return err
		}
		if err := p.templates.Register(ctx, key, chainTags(req)); err != nil {
			return err
		}
	} else {
		cached, err := p.templates.Check(ctx, key)
		if err != nil {
			return err
		}
		p.countLookup(module.TemplateNamespace, cached)

		if !cached {
			if err := p.templates.Register(ctx, key, chainTags(req)); err != nil {
				return err
			}
			if _, err := p.templates.GetOrResolve(ctx, key, resolve); err != nil {
				return err
			}
		}
	}

	if frame, err := p.currentFrame(ctx); err == nil {
		frame.SetState(stack.StateTemplateReady)
	}
	return nil
}

// Display executes the cached template of req with the request data and
// writes the output to w. Output of the page frame pushed by Serve is stored
// in the content cache when caching is enabled for the frame.
func (p *Pipeline) Display(ctx context.Context, req *types.Request, w io.Writer) (err error) {
	ctx, span := p.tracer.Start(ctx, "render.Display")
	defer func() { p.endSpan(span, err) }()

	s, ok := stack.FromContext(ctx)
	if !ok {
		return types.ErrEmptyStack
	}
	frame, err := s.Current()
	if err != nil {
		return err
	}

	key := req.TemplateKey()
	content, ok, err := p.templates.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || content == "" {
		return &types.EmptyTemplateError{Identifier: key}
	}

	frame.TranslationDomain = req.ComponentName()
	topLevel := frame.TopLevel

	data := make(map[string]interface{}, len(req.Data())+2)
	for k, v := range req.Data() {
		data[k] = v
	}
	data["render"] = &Helper{ctx: ctx, pipeline: p}

	session := uimessages.SessionFromContext(ctx)
	if p.messagesEnabled() && topLevel {
		queued, err := p.messages.Take(ctx, session)
		if err != nil {
			return err
		}
		data["uimessages"] = queued
	}

	output, err := p.execute(ctx, key, content, data, p.translator(frame.TranslationDomain))
	if err != nil {
		return err
	}
	frame.SetState(stack.StateEngineExecuted)

	if _, err := io.WriteString(w, output); err != nil {
		return types.WrapError(err, "failed to write output")
	}
	frame.SetState(stack.StateOutputEmitted)

	if p.config.ContentCache && frame.CacheEnabled && topLevel {
		identifier := req.Identifier()
		tags := append(append([]string{}, frame.Tags...), chainTags(req)...)

		if err := p.content.Register(ctx, identifier, tags); err != nil {
			return err
		}
		meta, err := p.content.PutWithTTL(ctx, identifier, []byte(output), frame.ETag, frame.CacheExpiry)
		if err != nil {
			return err
		}
		frame.ETag = meta.ETag
		frame.SetState(stack.StateCached)
	}

	if p.messagesEnabled() && len(frame.Messages) > 0 {
		if err := p.messages.Add(ctx, session, frame.Messages...); err != nil {
			return err
		}
		frame.Messages = nil
	}

	return nil
}

func (p *Pipeline) DisplayString(ctx context.Context, req *types.Request) (string, error) {
	var b strings.Builder
	if err := p.Display(ctx, req, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Invalidate drops template and content entries registered under tags.
func (p *Pipeline) Invalidate(ctx context.Context, tags []string) ([]string, error) {
	templateKeys, err := p.templates.Invalidate(ctx, tags)
	if err != nil {
		return nil, err
	}

	identifiers, err := p.content.Invalidate(ctx, tags)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Invalidated render caches",
		zap.Strings("tags", tags),
		zap.Int("templates", len(templateKeys)),
		zap.Int("contents", len(identifiers)))

	return append(templateKeys, identifiers...), nil
}

func (p *Pipeline) InvalidateAll(ctx context.Context) error {
	if err := p.templates.InvalidateAll(ctx); err != nil {
		return err
	}
	return p.content.InvalidateAll(ctx)
}

func (p *Pipeline) execute(ctx context.Context, source, content string, data map[string]interface{}, translate types.TranslateFunc) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &types.TemplatingEngineError{
				Engine: p.engine.Name(),
				Source: source,
				Err:    pkgerrors.Errorf("panic: %v", r),
			}
		}
	}()

	output, err = p.engine.Execute(ctx, source, content, data, translate)
	if err != nil {
		var engineErr *types.TemplatingEngineError
		if !pkgerrors.As(err, &engineErr) {
			err = &types.TemplatingEngineError{Engine: p.engine.Name(), Source: source, Err: err}
		}
		return "", err
	}
	return output, nil
}

func (p *Pipeline) translator(domain string) types.TranslateFunc {
	if p.translations == nil {
		return func(msgid string, args ...interface{}) string {
			if len(args) == 0 {
				return msgid
			}
			return fmt.Sprintf(msgid, args...)
		}
	}
	return p.translations.Translator(domain, p.config.DefaultLanguage)
}

func (p *Pipeline) messagesEnabled() bool {
	return p.config.EnableUIMessages && p.messages != nil
}

func (p *Pipeline) currentFrame(ctx context.Context) (*stack.Frame, error) {
	s, ok := stack.FromContext(ctx)
	if !ok {
		return nil, types.ErrEmptyStack
	}
	return s.Current()
}

func (p *Pipeline) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (p *Pipeline) countLookup(cache string, hit bool) {
	if p.metrics == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	p.metrics.Counter("render_cache_lookups_total", map[string]string{
		"cache":  cache,
		"result": result,
	}).Inc()
}

func (p *Pipeline) observe(kind string, start time.Time, err error) {
	if err != nil {
		p.logger.ErrorWithErrStack("Render failed", err, zap.String("kind", kind))
	}

	if p.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	p.metrics.Histogram("render_duration_seconds",
		[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		map[string]string{"kind": kind, "result": result},
	).ObserveDuration(start)
}

// chainTags are the distinct component names of the request chain.
func chainTags(req *types.Request) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, name := range component.Names(req.Chain()) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tags = append(tags, name)
	}
	return tags
}
