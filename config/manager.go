package config

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-render/types"
)

type ConfigurationManager struct {
	ctx         context.Context
	configPath  string
	loader      *Loader
	config      atomic.Pointer[types.ServiceConfig]
	parser      atomic.Pointer[Parser]
	loadTimeout time.Duration
}

func NewConfigurationManager(ctx context.Context, configPath string) (*ConfigurationManager, error) {
	cm := &ConfigurationManager{
		ctx:         ctx,
		configPath:  configPath,
		loader:      NewLoader(),
		loadTimeout: 30 * time.Second,
	}

	if err := cm.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return cm, nil
}

// NewStaticManager serves an already built configuration. Unset sections
// are filled from Defaults.
func NewStaticManager(config *types.ServiceConfig) (*ConfigurationManager, error) {
	loader := NewLoader()
	if config == nil {
		config = loader.Defaults()
	}

	defaults := loader.Defaults()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Version == "" {
		config.Version = defaults.Version
	}
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Store == nil {
		config.Store = defaults.Store
	}
	if config.Render == nil {
		config.Render = defaults.Render
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.Scheduler == nil {
		config.Scheduler = defaults.Scheduler
	}

	if err := loader.Validate(config); err != nil {
		return nil, err
	}

	cm := &ConfigurationManager{ctx: context.Background(), loader: loader}
	cm.config.Store(config)
	cm.parser.Store(NewParser(nil))

	return cm, nil
}

// Load re-reads the configuration file and swaps it in atomically.
func (cm *ConfigurationManager) Load() error {
	loadCtx, cancel := context.WithTimeout(cm.ctx, cm.loadTimeout)
	defer cancel()

	config, raw, err := cm.loader.LoadFromFile(loadCtx, cm.configPath)
	if err != nil {
		return types.WrapError(err, "failed to load configuration from file")
	}

	cm.config.Store(config)
	cm.parser.Store(NewParser(raw))

	return nil
}

func (cm *ConfigurationManager) GetConfig() *types.ServiceConfig {
	return cm.config.Load()
}

func (cm *ConfigurationManager) GetValue(path string, defaultValue interface{}) interface{} {
	parser := cm.parser.Load()
	if parser == nil {
		return defaultValue
	}
	return parser.GetValue(path, defaultValue)
}

func (cm *ConfigurationManager) GetAs(path string, target interface{}) error {
	parser := cm.parser.Load()
	if parser == nil {
		return types.ErrConfigIsNil
	}
	return parser.GetAs(path, target)
}

func (cm *ConfigurationManager) GetAllPaths() []string {
	parser := cm.parser.Load()
	if parser == nil {
		return nil
	}
	return parser.GetAllPaths()
}
