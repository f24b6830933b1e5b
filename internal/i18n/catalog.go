// Package i18n resolves localized message templates.
//
// Catalogs are flat YAML maps from key to template, embedded per language
// under locales/. Templates use positional placeholders ({0}, {1}, ...) so
// translations can reorder arguments. Keys missing from a language fall back
// to en-us, and keys missing everywhere render as the key itself.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FallbackLanguage is used for keys a catalog does not define.
const FallbackLanguage = "en-us"

// Keys used by the uploader and CLI.
const (
	ErrorUploadingLogResponse     = "string_errorUploadingLogResponse"
	InterpServerRejectedLogUpload = "string_interp_serverRejectedLogUpload"
	InterpErrorUploadingLog       = "string_interp_errorUploadingLog"
	LogUploaded                   = "string_logUploaded"
	LogUploadFailed               = "string_logUploadFailed"
)

//go:embed locales/*.yml
var locales embed.FS

// Catalog maps keys to templates for one language.
type Catalog struct {
	lang     string
	strings  map[string]string
	fallback map[string]string
}

// Load returns the embedded catalog for lang (case-insensitive, e.g. "de-DE").
func Load(lang string) (*Catalog, error) {
	lang = normalize(lang)
	fallback, err := readEmbedded(FallbackLanguage)
	if err != nil {
		return nil, err
	}
	if lang == FallbackLanguage {
		return &Catalog{lang: lang, strings: fallback, fallback: fallback}, nil
	}
	strs, err := readEmbedded(lang)
	if err != nil {
		return nil, err
	}
	return &Catalog{lang: lang, strings: strs, fallback: fallback}, nil
}

// LoadFile returns the embedded catalog for lang with the templates in path
// layered on top.
func LoadFile(lang, path string) (*Catalog, error) {
	c, err := Load(lang)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", path, err)
	}
	overrides, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("i18n: parse %s: %w", path, err)
	}
	merged := make(map[string]string, len(c.strings)+len(overrides))
	for k, v := range c.strings {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	c.strings = merged
	return c, nil
}

// Supported reports whether lang names an embedded catalog.
func Supported(lang string) bool {
	return slices.Contains(Languages(), normalize(lang))
}

// Languages lists the embedded languages.
func Languages() []string {
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yml"); ok {
			langs = append(langs, name)
		}
	}
	sort.Strings(langs)
	return langs
}

// Language returns the catalog's language tag.
func (c *Catalog) Language() string { return c.lang }

// String renders key with args substituted for {0}, {1}, ...
func (c *Catalog) String(key string, args ...any) string {
	tmpl, ok := c.strings[key]
	if !ok {
		tmpl, ok = c.fallback[key]
	}
	if !ok {
		if len(args) == 0 {
			return key
		}
		return key + ": " + fmt.Sprint(args...)
	}
	return substitute(tmpl, args)
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded en-us catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(FallbackLanguage)
		if err != nil {
			// The embedded catalog is part of the binary; failing to parse it
			// is a build defect.
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func substitute(tmpl string, args []any) string {
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(args)*2)
	for i, a := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", fmt.Sprint(a))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func readEmbedded(lang string) (map[string]string, error) {
	data, err := locales.ReadFile("locales/" + lang + ".yml")
	if err != nil {
		return nil, fmt.Errorf("i18n: unknown language %q", lang)
	}
	m, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("i18n: parse %s: %w", lang, err)
	}
	return m, nil
}

func parse(data []byte) (map[string]string, error) {
	m := map[string]string{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" {
		return FallbackLanguage
	}
	return lang
}
