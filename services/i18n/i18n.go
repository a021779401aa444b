package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

//go:embed *.json
var fs embed.FS

// DefaultLang is used when a request names no supported language
const DefaultLang = "pt-BR"

type contextKey string

// LocaleContextKey holds the request language in a context.Context
const LocaleContextKey contextKey = "locale"

// Catalog holds flattened messages per language: "pt-BR" -> "errors.slot_taken" -> "..."
type Catalog struct {
	messages map[string]map[string]string
	langs    []string
	matcher  language.Matcher
}

// Load reads every embedded locale file
func Load(log zerolog.Logger) (*Catalog, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales: %w", err)
	}

	raw := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		content, err := fs.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale file %s: %w", entry.Name(), err)
		}
		raw[strings.TrimSuffix(entry.Name(), ".json")] = content
	}

	c, err := newCatalog(raw)
	if err != nil {
		return nil, err
	}
	for _, lang := range c.langs {
		log.Debug().Str("lang", lang).Int("keys", len(c.messages[lang])).Msg("locale loaded")
	}
	return c, nil
}

func newCatalog(raw map[string][]byte) (*Catalog, error) {
	c := &Catalog{messages: make(map[string]map[string]string)}
	for lang, content := range raw {
		var nested map[string]interface{}
		if err := json.Unmarshal(content, &nested); err != nil {
			return nil, fmt.Errorf("failed to unmarshal locale %s: %w", lang, err)
		}
		flat := make(map[string]string)
		flatten("", nested, flat)
		c.messages[lang] = flat
		c.langs = append(c.langs, lang)
	}
	if _, ok := c.messages[DefaultLang]; !ok {
		return nil, fmt.Errorf("default locale %s is missing", DefaultLang)
	}

	// the matcher falls back to its first tag
	sort.Slice(c.langs, func(i, j int) bool {
		if c.langs[i] == DefaultLang || c.langs[j] == DefaultLang {
			return c.langs[i] == DefaultLang
		}
		return c.langs[i] < c.langs[j]
	})
	tags := make([]language.Tag, len(c.langs))
	for i, lang := range c.langs {
		tags[i] = language.Make(lang)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// flatten turns nested maps into dot-notation keys
func flatten(prefix string, nested map[string]interface{}, result map[string]string) {
	for k, v := range nested {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]interface{}:
			flatten(key, child, result)
		case string:
			result[key] = child
		default:
			result[key] = fmt.Sprintf("%v", child)
		}
	}
}

// Languages lists the loaded languages, default first
func (c *Catalog) Languages() []string {
	return append([]string(nil), c.langs...)
}

// Supported reports whether lang has a locale file
func (c *Catalog) Supported(lang string) bool {
	_, ok := c.messages[lang]
	return ok
}

// Match picks the best loaded language for an Accept-Language header
func (c *Catalog) Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLang
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return DefaultLang
	}
	return c.langs[idx]
}

// T translates key in the context's language
func (c *Catalog) T(ctx context.Context, key string, args ...map[string]interface{}) string {
	return c.Translate(GetLocale(ctx), key, args...)
}

// Translate looks key up in lang, then in the default language, then
// returns the key itself. {name} placeholders are filled from args.
func (c *Catalog) Translate(lang, key string, args ...map[string]interface{}) string {
	if val, ok := c.messages[lang][key]; ok {
		return format(val, args...)
	}
	if val, ok := c.messages[DefaultLang][key]; ok {
		return format(val, args...)
	}
	return key
}

func format(text string, args ...map[string]interface{}) string {
	if len(args) == 0 {
		return text
	}
	for k, v := range args[0] {
		text = strings.ReplaceAll(text, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return text
}

// WithLocale stores lang in ctx
func WithLocale(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, LocaleContextKey, lang)
}

// GetLocale returns the language stored by WithLocale, or DefaultLang
func GetLocale(ctx context.Context) string {
	if lang, ok := ctx.Value(LocaleContextKey).(string); ok && lang != "" {
		return lang
	}
	return DefaultLang
}
