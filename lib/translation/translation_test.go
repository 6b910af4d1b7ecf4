package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateRussian(t *testing.T) {
	Init("../../locales", "ru")
	t.Cleanup(func() { Init("../../locales", "en") })

	assert.Equal(t, "ru", GetLanguage())
	assert.Equal(t, "Оповещение создано", Translate("Alert set"))
	assert.Equal(t, "Цена AAPL недоступна, попробуйте позже.", Translate("Price of %s is unavailable, try later.", "AAPL"))
	assert.Equal(t, "untranslated", Translate("untranslated"))
}

func TestTranslateFallsBackToMsgID(t *testing.T) {
	Init("../../locales", "en")

	assert.Equal(t, "Alert #7 removed.", Translate("Alert #%d removed.", 7))
	assert.Equal(t, "stock", Translate("stock"))
}
