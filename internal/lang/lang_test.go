package lang

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		expectErr bool
	}{
		{"", Auto, false},
		{"auto", Auto, false},
		{" AUTO ", Auto, false},
		{"en", "en", false},
		{"en-us", "en-US", false},
		{"pt_BR", "pt-BR", false},
		{"fr", "fr", false},
		{"not a language", "", true},
		{"und", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestTranslationCode(t *testing.T) {
	tests := map[string]string{
		"en":      "en",
		"en-GB":   "en",
		"fr-CA":   "fr",
		"zh-Hant": "zh",
		"de":      "de",
	}

	for input, expected := range tests {
		if got := TranslationCode(input); got != expected {
			t.Errorf("TranslationCode(%q): expected %q, got %q", input, expected, got)
		}
	}
}

func TestResolveForTranslation(t *testing.T) {
	if got := ResolveForTranslation(Auto); got != DefaultSource {
		t.Errorf("Expected auto to resolve to %q, got %q", DefaultSource, got)
	}
	if got := ResolveForTranslation(""); got != DefaultSource {
		t.Errorf("Expected empty code to resolve to %q, got %q", DefaultSource, got)
	}
	if got := ResolveForTranslation("es-MX"); got != "es" {
		t.Errorf("Expected es, got %q", got)
	}
}

func TestLocale(t *testing.T) {
	tests := map[string]string{
		"auto":  "",
		"en":    "en-US",
		"en-GB": "en-GB",
		"fr":    "fr-FR",
		"ja":    "ja-JP",
		"de":    "de-DE",
	}

	for input, expected := range tests {
		if got := Locale(input); got != expected {
			t.Errorf("Locale(%q): expected %q, got %q", input, expected, got)
		}
	}
}

func TestSame(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"en", "en-US", true},
		{"auto", "en", true},
		{"auto", "fr", false},
		{"fr", "de", false},
	}

	for _, tt := range tests {
		if got := Same(tt.a, tt.b); got != tt.expected {
			t.Errorf("Same(%q, %q): expected %v, got %v", tt.a, tt.b, tt.expected, got)
		}
	}
}
