package translation

import (
	"os"

	"github.com/leonelquinteros/gotext"
	log "github.com/sirupsen/logrus"
)

const domain = "default"

// Init loads the catalogue of lang from localesDir. Message ids are the
// English texts, so a missing catalogue leaves the bot in English.
func Init(localesDir, lang string) {
	if _, err := os.Stat(localesDir); err != nil {
		log.WithError(err).Warnf("Locales directory %s not found, using English", localesDir)
	}
	gotext.Configure(localesDir, lang, domain)
	log.Infof("Language set to %s", GetLanguage())
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
