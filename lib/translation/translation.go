package translation

import (
	"github.com/leonelquinteros/gotext"
	"strings"
)

// Configure loads the "default" domain for lang from the locales directory.
func Configure(localesPath, lang string) {
	gotext.Configure(localesPath, strings.ToLower(lang), "default")
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
