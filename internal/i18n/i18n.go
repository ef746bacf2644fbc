// Package i18n provides message localization for user-visible strings.
//
// Every string that ends up on the wire or inside a persisted fragment
// (status notices, fallbacks, validation messages) goes through T or Sprintf
// so deployments can serve Spanish-speaking users with the original catalog.
package i18n

import (
	"fmt"
	"os"
	"strings"
)

// Supported languages.
const (
	LangEN = "en"
	LangES = "es"
)

// currentLang holds the current language setting.
var currentLang = LangEN

// messages stores all translations.
var messages = make(map[string]map[string]string)

// Init initializes the i18n system with the specified language.
func Init(lang string) {
	lang = strings.ToLower(strings.TrimSpace(lang))

	switch lang {
	case "en", "en-us", "english":
		currentLang = LangEN
	case "es", "es-es", "es-mx", "spanish":
		currentLang = LangES
	default:
		if envLang := os.Getenv("AGENT_LANG"); envLang != "" && !strings.EqualFold(envLang, lang) {
			Init(envLang)
			return
		}
		currentLang = LangEN
	}

	loadMessages()
}

// Language returns the current language.
func Language() string {
	return currentLang
}

// T returns the translated message for the given key.
// Falls back to English, then to the key itself.
func T(key string) string {
	if msg, ok := messages[currentLang][key]; ok {
		return msg
	}

	if msg, ok := messages[LangEN][key]; ok {
		return msg
	}

	return key
}

// Sprintf returns the translated and formatted message.
func Sprintf(key string, args ...any) string {
	return fmt.Sprintf(T(key), args...)
}

// loadMessages initializes the message maps.
func loadMessages() {
	if len(messages) > 0 {
		return
	}
	loadEnglishMessages()
	loadSpanishMessages()
}

func init() {
	loadMessages()
}
