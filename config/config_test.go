package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/types"
)

const sample = `
name: news-site
version: 2.1.0
logger:
  level: debug
store:
  type: redis
  config:
    addr: ${SAI_RENDER_TEST_REDIS}
    db: 3
render:
  engine: html
  content_ttl: 300s
  template_ttl: 1h
  enable_uimessages: true
  templates_dir: ./site
scheduler:
  enabled: true
  timezone: Europe/Berlin
  jobs:
    - name: nightly
      schedule: "0 3 * * *"
      cache: content
      tags: [news]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("SAI_RENDER_TEST_REDIS", "redis:6379")

	cm, err := NewConfigurationManager(context.Background(), writeConfig(t, sample))
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "news-site", cfg.Name)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, 300*time.Second, cfg.Render.ContentTTL)
	assert.Equal(t, time.Hour, cfg.Render.TemplateTTL)
	assert.True(t, cfg.Render.EnableUIMessages)
	assert.Equal(t, "./site", cfg.Render.TemplatesDir)
	require.Len(t, cfg.Scheduler.Jobs, 1)
	assert.Equal(t, []string{"news"}, cfg.Scheduler.Jobs[0].Tags)

	// untouched sections keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "core", cfg.Render.CoreComponentName)
	assert.True(t, cfg.Render.ContentCache)

	assert.Equal(t, "redis:6379", cm.GetValue("store.config.addr", ""))
	assert.Equal(t, "fallback", cm.GetValue("store.config.missing", "fallback"))

	var storeConfig struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	}
	require.NoError(t, cm.GetAs("store.config", &storeConfig))
	assert.Equal(t, 3, storeConfig.DB)

	assert.ErrorIs(t, cm.GetAs("store.nothing", &storeConfig), types.ErrConfigNotFound)
	assert.Contains(t, cm.GetAllPaths(), "render.content_ttl")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{name: "bad yaml", content: "render: [", target: types.ErrConfigParseFailed},
		{name: "port out of range", content: "server:\n  port: 70000\n", target: types.ErrConfigValidateFailed},
		{name: "unknown cache in job", content: "scheduler:\n  jobs:\n    - name: x\n      schedule: '@daily'\n      cache: pages\n", target: types.ErrConfigValidateFailed},
		{name: "metrics without type", content: "metrics:\n  enabled: true\n  type: ''\n", target: types.ErrConfigValidateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigurationManager(context.Background(), writeConfig(t, tt.content))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewConfigurationManager(context.Background(), filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorIs(t, err, types.ErrConfigNotFound)

	_, err = NewConfigurationManager(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigNotFound)
}

func TestStaticManagerFillsDefaults(t *testing.T) {
	cm, err := NewStaticManager(&types.ServiceConfig{
		Render: &types.RenderConfig{Engine: "plain", DevelopmentMode: true},
	})
	require.NoError(t, err)

	cfg := cm.GetConfig()
	assert.Equal(t, "plain", cfg.Render.Engine)
	assert.True(t, cfg.Render.DevelopmentMode)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "sai-render", cfg.Name)
	assert.Equal(t, "default", cm.GetValue("anything", "default"))
}

func TestReload(t *testing.T) {
	path := writeConfig(t, "render:\n  engine: html\n  development_mode: false\n")

	cm, err := NewConfigurationManager(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, cm.GetConfig().Render.DevelopmentMode)

	require.NoError(t, os.WriteFile(path, []byte("render:\n  engine: html\n  development_mode: true\n"), 0o600))
	require.NoError(t, cm.Load())
	assert.True(t, cm.GetConfig().Render.DevelopmentMode)
}
