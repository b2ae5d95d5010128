package web

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	smi18n "smabot/i18n"
)

const languageKey = "language"

var languageMatcher = func() language.Matcher {
	tags := make([]language.Tag, 0, len(smi18n.SupportedLanguages))
	for _, l := range smi18n.SupportedLanguages {
		tags = append(tags, language.MustParse(l))
	}
	return language.NewMatcher(tags)
}()

// I18nMiddleware 解析 lang 查询参数或 Accept-Language 头并设置到上下文
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := c.Query("lang")
		if lang == "" {
			lang = c.GetHeader("Accept-Language")
		}
		c.Set(languageKey, matchLanguage(lang))
		c.Next()
	}
}

// matchLanguage 匹配内置语言，无法匹配时使用系统语言
// 示例: "en-GB,en;q=0.9" -> "en-US"
func matchLanguage(accept string) string {
	fallback := smi18n.GetSystemLanguage()
	if fallback == "" {
		fallback = smi18n.SupportedLanguages[0]
	}
	if accept == "" {
		return fallback
	}

	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, index, confidence := languageMatcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}
	return smi18n.SupportedLanguages[index]
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang, ok := c.Get(languageKey); ok {
		if l, ok := lang.(string); ok {
			return l
		}
	}
	return matchLanguage("")
}
