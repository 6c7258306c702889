package service

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-render/cache"
	"github.com/saiset-co/sai-render/cache/module"
	"github.com/saiset-co/sai-render/component"
	"github.com/saiset-co/sai-render/dispatcher"
	"github.com/saiset-co/sai-render/engine"
	"github.com/saiset-co/sai-render/i18n"
	"github.com/saiset-co/sai-render/logger"
	"github.com/saiset-co/sai-render/metrics"
	"github.com/saiset-co/sai-render/render"
	"github.com/saiset-co/sai-render/scheduler"
	"github.com/saiset-co/sai-render/server"
	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/uimessages"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Service wires the render pipeline to its store, caches, components and
// outer surfaces (HTTP server, template watcher, flush scheduler).
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          types.LoggerManager
	metrics         types.MetricsManager
	store           types.KVStore
	content         *module.ContentCache
	templates       *module.TemplateCache
	registry        *component.Registry
	resolver        *dispatcher.Resolver
	pipeline        *render.Pipeline
	watcher         *component.Watcher
	scheduler       *scheduler.Scheduler
	server          *server.FastHTTPServer
	state           atomic.Value
	opened          int32
	done            chan struct{}
	wg              sync.WaitGroup
	shutdownTimeout time.Duration
}

// NewService builds every collaborator from config. Directory components
// are loaded from the templates directory; components adds programmatic
// ones, which must not reuse a directory component name.
func NewService(ctx context.Context, config types.ConfigManager, components ...types.Component) (*Service, error) {
	cfg := config.GetConfig()
	if cfg == nil || cfg.Render == nil {
		return nil, types.ErrConfigIsNil
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		config:          config,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}
	s.state.Store(StateStopped)

	if err := s.build(components); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Service) build(components []types.Component) error {
	cfg := s.config.GetConfig()
	renderConfig := cfg.Render

	loggerManager, err := logger.NewManager(s.config)
	if err != nil {
		return types.WrapError(err, "failed to create logger")
	}
	s.logger = loggerManager

	metricsManager, err := metrics.NewManager(s.config, s.logger)
	switch {
	case errors.Is(err, types.ErrMetricsIsDisabled):
	case err != nil:
		return types.WrapError(err, "failed to create metrics manager")
	default:
		s.metrics = metricsManager
	}

	if s.store, err = cache.NewStore(s.ctx, s.config, s.logger, s.metrics); err != nil {
		return types.WrapError(err, "failed to create store")
	}

	s.content = module.NewContentCache(s.store, s.logger, renderConfig.ContentTTL)
	s.templates = module.NewTemplateCache(s.store, s.logger, renderConfig.TemplateTTL)

	if s.registry, err = component.NewRegistry(); err != nil {
		return err
	}

	if err = s.loadDirectories(renderConfig.TemplatesDir); err != nil {
		return err
	}

	for _, c := range components {
		if err = s.registry.Register(c); err != nil {
			return err
		}
	}

	s.resolver = dispatcher.NewResolver(s.registry)
	for _, name := range s.registry.Names() {
		if name == renderConfig.CoreComponentName {
			s.resolver.Mount("/", name)
			continue
		}
		s.resolver.Mount("/"+name, name)
	}

	templatingEngine, err := engine.New(renderConfig.Engine)
	if err != nil {
		return err
	}

	translations, err := i18n.New(s.logger, renderConfig.DefaultLanguage)
	if err != nil {
		return err
	}
	if renderConfig.TranslationsDir != "" {
		if err = translations.LoadFS(os.DirFS(renderConfig.TranslationsDir), "."); err != nil {
			return types.WrapError(err, "failed to load translations")
		}
	}

	var messages *uimessages.Queue
	if renderConfig.EnableUIMessages {
		messages = uimessages.NewQueue(s.store, s.logger)
	}

	s.pipeline, err = render.NewPipeline(renderConfig, s.logger, render.Dependencies{
		Content:      s.content,
		Templates:    s.templates,
		Registry:     s.registry,
		Resolver:     s.resolver,
		Dispatcher:   dispatcher.NewManual(s.logger),
		Engine:       templatingEngine,
		Translations: translations,
		Messages:     messages,
		Metrics:      s.metrics,
	})
	if err != nil {
		return types.WrapError(err, "failed to create render pipeline")
	}

	if renderConfig.WatchTemplates {
		if s.watcher, err = component.NewWatcher(s.logger, s.pipeline, 0); err != nil {
			return err
		}
		for _, d := range s.registry.Directories() {
			if err = s.watcher.Watch(d); err != nil {
				return err
			}
		}
	}

	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		s.scheduler, err = scheduler.NewScheduler(s.ctx, s.config, s.logger, s.metrics, map[string]scheduler.Flusher{
			scheduler.CacheContent:  s.content,
			scheduler.CacheTemplate: s.templates,
			scheduler.CacheAll:      s.pipeline,
		})
		if err != nil {
			return types.WrapError(err, "failed to create scheduler")
		}
	}

	if cfg.Server != nil {
		s.server, err = server.NewHTTPServer(s.ctx, s.config, s.logger, s.metrics, s.pipeline, s.resolver)
		if err != nil {
			return types.WrapError(err, "failed to create HTTP server")
		}

		s.server.RegisterHealthCheck("store", s.store)
		if s.scheduler != nil {
			s.server.RegisterHealthCheck("scheduler", s.scheduler)
		}
	}

	return nil
}

// loadDirectories registers every subdirectory of dir as a component.
func (s *Service) loadDirectories(dir string) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Templates directory not found", zap.String("dir", dir))
		return nil
	}
	if err != nil {
		return types.WrapError(err, "failed to read templates directory")
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		d := component.NewDirectoryFromPath(entry.Name(), filepath.Join(dir, entry.Name()))

		routes, err := d.LoadRoutes()
		if err != nil {
			return err
		}

		if err = s.registry.Register(d); err != nil {
			return err
		}

		s.logger.Debug("Directory component loaded",
			zap.String("component", d.Name()),
			zap.Int("routes", routes))
	}

	return nil
}

func (s *Service) Pipeline() *render.Pipeline {
	return s.pipeline
}

func (s *Service) Registry() *component.Registry {
	return s.registry
}

func (s *Service) Resolver() *dispatcher.Resolver {
	return s.resolver
}

func (s *Service) Server() *server.FastHTTPServer {
	return s.server
}

func (s *Service) Logger() types.Logger {
	return s.logger
}

// Open starts the logger, metrics and store. It is enough for one-shot
// operations such as Invalidate.
func (s *Service) Open() error {
	if !atomic.CompareAndSwapInt32(&s.opened, 0, 1) {
		return nil
	}

	if err := s.logger.Start(); err != nil {
		return types.WrapError(err, "failed to start logger")
	}

	if s.metrics != nil {
		if err := s.metrics.Start(); err != nil {
			return types.WrapError(err, "failed to start metrics manager")
		}
	}

	if err := s.store.Start(); err != nil {
		return types.WrapError(err, "failed to start store")
	}

	return nil
}

// Close stops what Open started.
func (s *Service) Close() error {
	if !atomic.CompareAndSwapInt32(&s.opened, 1, 0) {
		return nil
	}

	var errs []error

	if err := s.store.Stop(); err != nil {
		errs = append(errs, types.WrapError(err, "store"))
	}

	if s.metrics != nil {
		if err := s.metrics.Stop(); err != nil {
			errs = append(errs, types.WrapError(err, "metrics"))
		}
	}

	if err := s.logger.Stop(); err != nil {
		errs = append(errs, types.WrapError(err, "logger"))
	}

	return errors.Join(errs...)
}

func (s *Service) Invalidate(ctx context.Context, tags []string) ([]string, error) {
	return s.pipeline.Invalidate(ctx, tags)
}

func (s *Service) InvalidateAll(ctx context.Context) error {
	return s.pipeline.InvalidateAll(ctx)
}

// Start runs the service until Stop, a signal or cancellation of the
// parent context.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	if err := s.Open(); err != nil {
		s.state.Store(StateStopped)
		return err
	}

	if err := s.startComponents(); err != nil {
		s.state.Store(StateStopped)
		_ = s.stopComponents()
		return types.WrapError(err, "failed to start components")
	}

	s.state.Store(StateRunning)
	s.setupSignalHandling()

	s.logger.Info("Service started successfully", zap.String("name", s.config.GetConfig().Name))

	<-s.ctx.Done()

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.state.Store(StateStopped)
	close(s.done)

	s.logger.Info("Service stopped gracefully")
	return s.Close()
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) startComponents() error {
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return types.WrapError(err, "failed to start template watcher")
		}
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return types.WrapError(err, "failed to start scheduler")
		}
	}

	if s.server != nil {
		if err := s.server.Start(); err != nil {
			return types.WrapError(err, "failed to start HTTP server")
		}
	}

	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if s.server != nil && s.server.IsRunning() {
		if err := s.server.Stop(); err != nil {
			s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}
	}

	var managers []types.LifecycleManager
	if s.scheduler != nil && s.scheduler.IsRunning() {
		managers = append(managers, s.scheduler)
	}
	if s.watcher != nil && s.watcher.IsRunning() {
		managers = append(managers, s.watcher)
	}

	g, gCtx := errgroup.WithContext(ctx)

	for _, manager := range managers {
		manager := manager
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				return manager.Stop()
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			s.logger.Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			return err
		}
	}

	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}
		case <-s.ctx.Done():
		}

		signal.Stop(sigChan)
	}()
}
