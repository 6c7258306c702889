package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-render/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// LoadFromFile reads a YAML file over Defaults and validates the result.
// Environment references like ${REDIS_ADDR} are expanded before parsing.
func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, map[string]interface{}, error) {
	if configPath == "" {
		return nil, nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil, types.Errorf(types.ErrConfigNotFound, "file not found: %s", configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, nil, types.Errorf(types.ErrConfigLoadFailed, "read %s: %v", configPath, err)
	}

	return l.Parse([]byte(os.ExpandEnv(string(data))))
}

func (l *Loader) Parse(data []byte) (*types.ServiceConfig, map[string]interface{}, error) {
	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, types.Errorf(types.ErrConfigParseFailed, "%v", err)
	}

	if err := l.Validate(config); err != nil {
		return nil, nil, err
	}

	return config, raw, nil
}

func (l *Loader) Validate(config *types.ServiceConfig) error {
	if config == nil {
		return types.ErrConfigIsNil
	}

	if err := l.validator.Struct(config); err != nil {
		return types.Errorf(types.ErrConfigValidateFailed, "%v", err)
	}

	return nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Name:    "sai-render",
		Version: "1.0.0",
		Server: &types.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			Compression:     false,
			CompressionLvl:  5,
			MetricsPath:     "/metrics",
			HealthPath:      "/health",
			ShutdownTimeout: 5,
		},
		Logger: &types.LoggerConfig{
			Level: "info",
		},
		Store: &types.StoreConfig{
			Type: "memory",
		},
		Render: &types.RenderConfig{
			DevelopmentMode:   false,
			Engine:            "html",
			ContentCache:      true,
			ContentTTL:        5 * time.Minute,
			TemplateTTL:       time.Hour,
			EnableUIMessages:  false,
			TemplatesDir:      "templates",
			MaxIncludeDepth:   32,
			WatchTemplates:    false,
			DefaultLanguage:   "en",
			CoreComponentName: "core",
		},
		Metrics: &types.MetricsConfig{
			Enabled:   false,
			Type:      "prometheus",
			Namespace: "sai_render",
		},
		Scheduler: &types.SchedulerConfig{
			Enabled:  false,
			Timezone: "UTC",
		},
	}
}
