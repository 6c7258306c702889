package types

import (
	"time"
)

type ConfigManager interface {
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Version   string           `yaml:"version" json:"version" validate:"required"`
	Server    *ServerConfig    `yaml:"server" json:"server"`
	Logger    *LoggerConfig    `yaml:"logger" json:"logger" validate:"required"`
	Store     *StoreConfig     `yaml:"store" json:"store" validate:"required"`
	Render    *RenderConfig    `yaml:"render" json:"render" validate:"required"`
	Metrics   *MetricsConfig   `yaml:"metrics" json:"metrics"`
	Scheduler *SchedulerConfig `yaml:"scheduler" json:"scheduler"`
}

type ServerConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	Compression     bool   `yaml:"compression" json:"compression"`
	CompressionLvl  int    `yaml:"compression_level" json:"compression_level" validate:"min=0,max=11"`
	MetricsPath     string `yaml:"metrics_path" json:"metrics_path"`
	HealthPath      string `yaml:"health_path" json:"health_path"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type StoreConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

// RenderConfig is the read-only configuration surface of the rendering core.
type RenderConfig struct {
	DevelopmentMode   bool          `yaml:"development_mode" json:"development_mode"`
	Engine            string        `yaml:"engine" json:"engine" validate:"required"`
	ContentCache      bool          `yaml:"content_cache" json:"content_cache"`
	ContentTTL        time.Duration `yaml:"content_ttl" json:"content_ttl" validate:"min=0"`
	TemplateTTL       time.Duration `yaml:"template_ttl" json:"template_ttl" validate:"min=0"`
	EnableUIMessages  bool          `yaml:"enable_uimessages" json:"enable_uimessages"`
	TemplatesDir      string        `yaml:"templates_dir" json:"templates_dir"`
	TranslationsDir   string        `yaml:"translations_dir" json:"translations_dir"`
	Subtemplate       string        `yaml:"subtemplate" json:"subtemplate"`
	MaxIncludeDepth   int           `yaml:"max_include_depth" json:"max_include_depth" validate:"min=0"`
	WatchTemplates    bool          `yaml:"watch_templates" json:"watch_templates"`
	DefaultLanguage   string        `yaml:"default_language" json:"default_language"`
	CoreComponentName string        `yaml:"core_component" json:"core_component"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Type      string            `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
	GoMetrics bool              `yaml:"go_metrics" json:"go_metrics"`
}

type SchedulerConfig struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Timezone string         `yaml:"timezone" json:"timezone" validate:"required_if=Enabled true"`
	Jobs     []ScheduledJob `yaml:"jobs" json:"jobs" validate:"dive"`
}

// ScheduledJob flushes a cache on a cron schedule. An empty Tags list
// flushes the whole cache. An empty Cache targets both caches.
type ScheduledJob struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Schedule string   `yaml:"schedule" json:"schedule" validate:"required"`
	Cache    string   `yaml:"cache" json:"cache" validate:"omitempty,oneof=content template"`
	Tags     []string `yaml:"tags" json:"tags"`
}
