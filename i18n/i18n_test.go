package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-render/logger"
	"github.com/saiset-co/sai-render/types"
)

func TestTranslatorDomains(t *testing.T) {
	s, err := New(logger.NewNop(), "en")
	require.NoError(t, err)

	require.NoError(t, s.Load("news", "de", map[string]string{"latest news": "Neueste Nachrichten"}))
	require.NoError(t, s.Load("", "de", map[string]string{"read more": "Weiterlesen"}))
	require.NoError(t, s.Load("", "en", map[string]string{"%d items": "%d entries"}))

	news := s.Translator("news", "de")
	assert.Equal(t, "Neueste Nachrichten", news("latest news"))
	assert.Equal(t, "Weiterlesen", news("read more"))
	assert.Equal(t, "3 entries", news("%d items", 3))
	assert.Equal(t, "untranslated", news("untranslated"))
	assert.Equal(t, "hello world", news("hello %s", "world"))

	blog := s.Translator("blog", "de")
	assert.Equal(t, "latest news", blog("latest news"))
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"locale/de.yaml":      {Data: []byte("read more: Weiterlesen\n")},
		"locale/news/de.yaml": {Data: []byte("latest news: Neueste Nachrichten\n")},
		"locale/README.md":    {Data: []byte("ignored")},
	}

	s, err := New(logger.NewNop(), "en")
	require.NoError(t, err)
	require.NoError(t, s.LoadFS(fsys, "locale"))

	assert.Equal(t, "Neueste Nachrichten", s.Translate("news", "de", "latest news"))
	assert.Equal(t, "Weiterlesen", s.Translate("news", "de", "read more"))
}

func TestInvalidLanguage(t *testing.T) {
	_, err := New(logger.NewNop(), "not a language!")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	s, err := New(logger.NewNop(), "")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Load("", "??", nil), types.ErrInvalidParameter)
}
