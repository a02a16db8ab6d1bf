// Package i18n provides localized printers for CLI output.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we ship translations for
var SupportedLangs = []language.Tag{
	language.English,
	language.French,
}

var matcher = language.NewMatcher(SupportedLangs)

// french maps the English format strings printed by the CLI to French.
// Keys are the literal format strings passed to Printf.
var french = map[string]string{
	"Usage: %s <command> [options]\n":             "Utilisation : %s <commande> [options]\n",
	"Commands:\n":                                 "Commandes :\n",
	"%s failed: %v\n":                             "échec de %s : %v\n",
	"Unknown command: %s\n":                       "Commande inconnue : %s\n",
	"%d of %d assertions passed\n":                "%d assertions réussies sur %d\n",
	"%d failed, %d skipped, %d todo\n":            "%d en échec, %d ignorées, %d à faire\n",
	"Bailed out: %s\n":                            "Abandon : %s\n",
	"Wrote %d frames (%d bytes) to %s\n":          "%d trames écrites (%d octets) dans %s\n",
	"Frame %d (%d bytes):\n":                      "Trame %d (%d octets) :\n",
	"%d frames decoded\n":                         "%d trames décodées\n",
	"%-24s %d steps\n":                            "%-24s %d étapes\n",
	"No run history in %s\n":                      "Aucun historique dans %s\n",
	"Runs recorded: %d, assertions tracked: %d\n": "Exécutions enregistrées : %d, assertions suivies : %d\n",
	"Flaky assertions:\n":                         "Assertions instables :\n",
	"No flaky assertions.\n":                      "Aucune assertion instable.\n",
	"%s version %s\n":                             "%s version %s\n",
	"Failures:\n":                                 "Échecs :\n",
	"Run %s took %s\n":                            "Exécution %s terminée en %s\n",
	"Configuration valid: %s\n":                   "Configuration valide : %s\n",
	"Wrote %s\n":                                  "%s écrit\n",
}

var cat = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(DefaultLang))
	for key := range french {
		// English strings print as-is.
		_ = b.SetString(language.English, key, key)
	}
	for key, msg := range french {
		_ = b.SetString(language.French, key, msg)
	}
	return b
}

// MatchLanguage returns the best supported language for a locale or
// Accept-Language style string.
func MatchLanguage(lang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(lang)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language.
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(cat))
}

// NewCLIPrinter returns a printer for the system's locale (from env vars).
func NewCLIPrinter() *message.Printer {
	return NewPrinter(localeTag(os.Getenv("LC_ALL"), os.Getenv("LC_MESSAGES"), os.Getenv("LANG")))
}

// localeTag picks the first non-empty POSIX locale and maps it onto a
// supported language.
func localeTag(locales ...string) language.Tag {
	lang := ""
	for _, l := range locales {
		if l != "" {
			lang = l
			break
		}
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return DefaultLang
	}

	// Strip encoding and modifier: fr_FR.UTF-8@euro
	if i := strings.IndexAny(lang, ".@"); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		return MatchLanguage(lang)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}
