// Package lang normalizes the language codes that flow between the caption
// session and its backends. Users and clients may send any BCP-47 tag or the
// keyword "auto"; transcription backends want a region-qualified locale while
// translation backends want a bare ISO 639 code.
package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const (
	// Auto asks the transcription backend to detect the spoken language
	Auto = "auto"

	// DefaultSource stands in for Auto whenever a concrete source language is
	// required, which is only the case for translation
	DefaultSource = "en"
)

// Normalize validates a language code and returns its canonical form.
// Empty input and "auto" (any case) both return Auto.
func Normalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, Auto) {
		return Auto, nil
	}

	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	if tag == language.Und {
		return "", fmt.Errorf("invalid language code %q: undetermined", code)
	}
	return tag.String(), nil
}

// IsAuto reports whether code requests automatic detection
func IsAuto(code string) bool {
	code = strings.TrimSpace(code)
	return code == "" || strings.EqualFold(code, Auto)
}

// ResolveForTranslation substitutes DefaultSource for Auto and reduces the
// result to the code translation backends expect
func ResolveForTranslation(code string) string {
	if IsAuto(code) {
		return DefaultSource
	}
	return TranslationCode(code)
}

// TranslationCode reduces a tag to its base language ("en-GB" -> "en").
// Unparseable input is returned lower-cased so the backend can reject it.
func TranslationCode(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(code))
	}
	base, _ := tag.Base()
	return base.String()
}

// Locale returns the region-qualified locale for transcription backends
// ("en" -> "en-US", "fr" -> "fr-FR"). An explicit region is kept as given.
// Auto maps to the empty string, which backends read as "detect".
func Locale(code string) string {
	if IsAuto(code) {
		return ""
	}

	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return strings.TrimSpace(code)
	}

	base, _ := tag.Base()
	region, _ := tag.Region()
	if region.String() == "ZZ" {
		return base.String()
	}

	locale, err := language.Compose(base, region)
	if err != nil {
		return base.String()
	}
	return locale.String()
}

// Same reports whether two codes name the same translation language.
// Auto is resolved to DefaultSource first.
func Same(a, b string) bool {
	return ResolveForTranslation(a) == ResolveForTranslation(b)
}
