// internal/i18n/i18n.go
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed locales/*.json
var localeFS embed.FS

type I18n struct {
	mu           sync.RWMutex
	translations map[string]map[string]string
	defaultLang  string
}

var instance *I18n
var once sync.Once

// Initialize loads the embedded catalogs. defaultLang is the fallback for
// unknown languages and missing keys.
func Initialize(defaultLang string) error {
	var err error
	once.Do(func() {
		if defaultLang == "" {
			defaultLang = "en"
		}
		i := &I18n{
			translations: make(map[string]map[string]string),
			defaultLang:  defaultLang,
		}
		if err = i.loadTranslations(); err == nil {
			instance = i
		}
	})
	return err
}

func (i *I18n) loadTranslations() error {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("failed to list locales: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		lang := strings.TrimSuffix(name, ".json")

		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return fmt.Errorf("failed to read locale file %s: %w", name, err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to unmarshal locale file %s: %w", name, err)
		}

		i.mu.Lock()
		i.translations[lang] = translations
		i.mu.Unlock()
	}

	if _, ok := i.translations[i.defaultLang]; !ok {
		return fmt.Errorf("no catalog for default language %q", i.defaultLang)
	}
	return nil
}

func (i *I18n) lookup(lang, key string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if translations, exists := i.translations[lang]; exists {
		if text, exists := translations[key]; exists {
			return text, true
		}
	}
	if lang != i.defaultLang {
		if text, exists := i.translations[i.defaultLang][key]; exists {
			return text, true
		}
	}
	return "", false
}

func (i *I18n) T(lang, key string, args ...interface{}) string {
	text, ok := i.lookup(lang, key)
	if !ok {
		// Return key if no translation found
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

func (i *I18n) supports(lang string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.translations[lang]
	return ok
}

// Global functions
func T(lang, key string, args ...interface{}) string {
	if instance != nil {
		return instance.T(lang, key, args...)
	}
	return key
}

// Supported reports whether a catalog exists for lang.
func Supported(lang string) bool {
	return instance != nil && instance.supports(lang)
}

func DefaultLanguage() string {
	if instance == nil {
		return "en"
	}
	return instance.defaultLang
}

func GetSupportedLanguages() []string {
	if instance == nil {
		return []string{"en"}
	}

	instance.mu.RLock()
	defer instance.mu.RUnlock()

	langs := make([]string, 0, len(instance.translations))
	for lang := range instance.translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
