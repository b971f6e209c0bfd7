package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a recognition or translation language offered in menus
type Language struct {
	Code string // BCP 47 tag as sent to the engine (e.g. "en-US", "fr")
	Name string // English display name
}

// common are the recognition locales offered by configure; any valid tag
// is still accepted from clients and the config file.
var common = []string{
	"en-US", "en-GB", "en-AU", "en-IN",
	"es-ES", "es-419", "fr-FR", "fr-CA",
	"de-DE", "it-IT", "pt-BR", "pt-PT",
	"nl-NL", "sv-SE", "da-DK", "cs",
	"fi", "pl", "ru", "uk",
	"tr", "hi", "ja", "ko",
	"zh-CN", "zh-TW", "id", "vi",
}

// Normalize parses a language tag and returns its canonical BCP 47 form.
// Underscores are accepted as separators. The empty string is returned
// unchanged.
func Normalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", nil
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q: %w", code, err)
	}
	return tag.String(), nil
}

// IsValid reports whether code is empty or a well-formed language tag.
func IsValid(code string) bool {
	_, err := Normalize(code)
	return err == nil
}

// Label returns a human-readable label for a language code.
// Example: "es" -> "Spanish (es)", "en-US" -> "American English (en-US)".
func Label(code string) string {
	if code == "" {
		return ""
	}

	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return fmt.Sprintf("language '%s'", code)
	}

	name := display.English.Tags().Name(tag)
	if name == "" || strings.EqualFold(name, code) {
		return fmt.Sprintf("language '%s'", code)
	}

	return fmt.Sprintf("%s (%s)", name, code)
}

// Common returns the menu languages
func Common() []Language {
	result := make([]Language, 0, len(common))
	for _, code := range common {
		tag := language.MustParse(code)
		result = append(result, Language{Code: code, Name: display.English.Tags().Name(tag)})
	}
	return result
}
