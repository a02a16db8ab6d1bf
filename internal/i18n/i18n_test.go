package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"fr-FR,fr;q=0.9", language.French},
		{"de-DE", language.English}, // Fallback
		{"", language.English},
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLocaleTag(t *testing.T) {
	tests := []struct {
		name     string
		locales  []string
		expected language.Tag
	}{
		{"empty", []string{"", ""}, language.English},
		{"posix", []string{"C"}, language.English},
		{"french utf8", []string{"fr_FR.UTF-8"}, language.French},
		{"modifier", []string{"fr_BE@euro"}, language.French},
		{"first wins", []string{"", "en_GB.UTF-8", "fr_FR.UTF-8"}, language.English},
		{"unsupported", []string{"ja_JP.UTF-8"}, language.English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, _ := localeTag(tt.locales...).Base()
			exp, _ := tt.expected.Base()
			assert.Equal(t, exp, base)
		})
	}
}

func TestPrinterTranslates(t *testing.T) {
	fr := NewPrinter(language.French)
	assert.Equal(t, "3 assertions réussies sur 4\n", fr.Sprintf("%d of %d assertions passed\n", 3, 4))

	en := NewPrinter(language.English)
	assert.Equal(t, "3 of 4 assertions passed\n", en.Sprintf("%d of %d assertions passed\n", 3, 4))

	// Untranslated keys fall through unchanged.
	assert.Equal(t, "plain 1", fr.Sprintf("plain %d", 1))
}

func TestCLIPrinterFromEnv(t *testing.T) {
	t.Setenv("LC_ALL", "fr_FR.UTF-8")
	p := NewCLIPrinter()
	assert.Equal(t, "Commandes :\n", p.Sprintf("Commands:\n"))
}
