package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	require.NoError(t, Init("en-US"))

	assert.Equal(t, "Profit", T("report.profit"))
	assert.Equal(t, "利润", TWithLang("zh-CN", "report.profit"))
	assert.Equal(t, "SMA Backtest Report", TWithLang("en-US", "report.title", map[string]interface{}{"Strategy": "SMA"}))

	// 未知 key 原样返回
	assert.Equal(t, "report.unknown", T("report.unknown"))

	// 未内置的语言回退到中文
	assert.Equal(t, "利润", TWithLang("fr-FR", "report.profit"))

	tr := Translator("en-US")
	assert.Equal(t, "Open positions", tr("report.open_positions"))
}

func TestInitRejectsBadLanguage(t *testing.T) {
	assert.Error(t, Init("not a language!"))
}

func TestLocalesHaveSameKeys(t *testing.T) {
	require.NoError(t, Init(""))
	assert.Equal(t, "zh-CN", GetSystemLanguage())

	for _, key := range []string{"report.title", "report.average_sell_price", "status.no_trades", "report.footer"} {
		for _, lang := range SupportedLanguages {
			assert.NotEqual(t, key, TWithLang(lang, key, map[string]interface{}{"Strategy": "x"}), "%s missing in %s", key, lang)
		}
	}
}
