package i18n

import (
	"embed"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// SupportedLanguages 内置的语言，第一个为默认语言
var SupportedLanguages = []string{"zh-CN", "en-US"}

// catalog 已加载的翻译及按语言缓存的 Localizer
type catalog struct {
	bundle *i18n.Bundle

	mu         sync.Mutex
	localizers map[string]*i18n.Localizer
}

var (
	mu             sync.RWMutex
	current        *catalog
	systemLanguage string
)

func defaultLanguage() string {
	return SupportedLanguages[0]
}

// Init 加载内置翻译并设置系统语言
func Init(lang string) error {
	if lang == "" {
		lang = defaultLanguage()
	}
	if _, err := language.Parse(lang); err != nil {
		return fmt.Errorf("invalid language %q: %w", lang, err)
	}

	c, err := loadCatalog()
	if err != nil {
		return err
	}

	mu.Lock()
	current = c
	systemLanguage = lang
	mu.Unlock()
	return nil
}

func loadCatalog() (*catalog, error) {
	b := i18n.NewBundle(language.MustParse(defaultLanguage()))
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	for _, l := range SupportedLanguages {
		filename := "locales/" + l + ".yaml"
		if _, err := b.LoadMessageFileFS(localeFS, filename); err != nil {
			return nil, fmt.Errorf("load translation file %s: %w", filename, err)
		}
	}
	return &catalog{bundle: b, localizers: make(map[string]*i18n.Localizer)}, nil
}

// localizer 未内置的语言回退到默认语言
func (c *catalog) localizer(lang string) *i18n.Localizer {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.localizers[lang]
	if !ok {
		l = i18n.NewLocalizer(c.bundle, lang, defaultLanguage())
		c.localizers[lang] = l
	}
	return l
}

// Ensure 未初始化时按默认语言初始化
func Ensure() error {
	mu.RLock()
	ready := current != nil
	mu.RUnlock()
	if ready {
		return nil
	}
	return Init("")
}

// T 按系统语言翻译
func T(key string, data ...interface{}) string {
	return TWithLang(GetSystemLanguage(), key, data...)
}

// TWithLang 按指定语言翻译，data[0] 为模板参数；未初始化或缺少 key 时返回 key
func TWithLang(lang string, key string, data ...interface{}) string {
	mu.RLock()
	c := current
	if lang == "" {
		lang = systemLanguage
	}
	mu.RUnlock()
	if c == nil {
		return key
	}

	cfg := &i18n.LocalizeConfig{MessageID: key}
	if len(data) > 0 {
		if m, ok := data[0].(map[string]interface{}); ok {
			cfg.TemplateData = m
		}
	}

	msg, err := c.localizer(lang).Localize(cfg)
	if err != nil {
		return key
	}
	return msg
}

// Translator 绑定语言的翻译函数，供模板使用
func Translator(lang string) func(key string) string {
	return func(key string) string {
		return TWithLang(lang, key)
	}
}

// SetSystemLanguage 设置系统默认语言
func SetSystemLanguage(lang string) {
	mu.Lock()
	defer mu.Unlock()
	systemLanguage = lang
}

// GetSystemLanguage 获取系统默认语言，未初始化时为空
func GetSystemLanguage() string {
	mu.RLock()
	defer mu.RUnlock()
	return systemLanguage
}
