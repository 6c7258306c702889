package i18n

import (
	"io/fs"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-render/types"
)

const keySeparator = "\x1f"

// Service holds translation catalogs per domain. A domain is usually a
// component name; the empty domain is shared by every component.
type Service struct {
	logger   types.Logger
	fallback language.Tag

	mu      sync.RWMutex
	builder *catalog.Builder
	known   map[string]struct{}
}

func New(logger types.Logger, defaultLanguage string) (*Service, error) {
	fallback := language.English
	if defaultLanguage != "" {
		tag, err := language.Parse(defaultLanguage)
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidParameter, "default language %q: %v", defaultLanguage, err)
		}
		fallback = tag
	}

	return &Service{
		logger:   logger,
		fallback: fallback,
		builder:  catalog.NewBuilder(catalog.Fallback(fallback)),
		known:    make(map[string]struct{}),
	}, nil
}

// Load adds translations for one domain and language.
func (s *Service) Load(domain, lang string, messages map[string]string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return types.Errorf(types.ErrInvalidParameter, "language %q: %v", lang, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for msgid, translation := range messages {
		k := key(domain, msgid)
		if err := s.builder.SetString(tag, k, translation); err != nil {
			return types.WrapError(err, "failed to add translation "+msgid)
		}
		s.known[tag.String()+keySeparator+k] = struct{}{}
	}

	return nil
}

// LoadFS reads <domain>/<lang>.yaml files, each a flat msgid: translation map.
// Files directly under root load into the shared domain.
func (s *Service) LoadFS(fsys fs.FS, root string) error {
	if root == "" {
		root = "."
	}

	return fs.WalkDir(fsys, root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(file) != ".yaml" {
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(file, root), "/")
		domain := path.Dir(rel)
		if domain == "." {
			domain = ""
		}
		lang := strings.TrimSuffix(path.Base(rel), ".yaml")

		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return types.WrapError(err, "failed to read translations "+file)
		}

		var messages map[string]string
		if err := yaml.Unmarshal(data, &messages); err != nil {
			return types.Errorf(types.ErrConfigParseFailed, "translations %s: %v", file, err)
		}

		s.logger.Debug("Loaded translations",
			zap.String("domain", domain),
			zap.String("language", lang),
			zap.Int("messages", len(messages)))

		return s.Load(domain, lang, messages)
	})
}

// Translator returns a TranslateFunc for domain in lang. Lookups try the
// domain, then the shared domain, first in lang and then in the default
// language. Unknown msgids are used as the format themselves.
func (s *Service) Translator(domain, lang string) types.TranslateFunc {
	tags := []language.Tag{s.fallback}
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil && parsed != s.fallback {
			tags = []language.Tag{parsed, s.fallback}
		}
	}

	return func(msgid string, args ...interface{}) string {
		for _, tag := range tags {
			for _, k := range []string{key(domain, msgid), key("", msgid)} {
				if s.has(tag, k) {
					return s.printer(tag).Sprintf(k, args...)
				}
			}
		}
		if len(args) == 0 {
			return msgid
		}
		return s.printer(s.fallback).Sprintf(msgid, args...)
	}
}

func (s *Service) Translate(domain, lang, msgid string, args ...interface{}) string {
	return s.Translator(domain, lang)(msgid, args...)
}

func (s *Service) printer(tag language.Tag) *message.Printer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.NewPrinter(tag, message.Catalog(s.builder))
}

func (s *Service) has(tag language.Tag, k string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[tag.String()+keySeparator+k]
	return ok
}

func key(domain, msgid string) string {
	return domain + keySeparator + msgid
}
