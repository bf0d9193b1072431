// Package i18n translates the sitetrans command-line messages.
//
// Catalogs are gettext .po files embedded under locales/<lang>/LC_MESSAGES.
// Init picks the catalog closest to the operator's locale (nl_BE uses the
// nl catalog); anything without a catalog entry is printed in English.
//
//	i18n.Init("")
//	logInfo(i18n.T("Translating %d record jobs (%s) into %s"), n, kinds, langs)
//	fmt.Printf(i18n.N("%d job failed", "%d jobs failed", n), n)
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
	"golang.org/x/text/language"
)

//go:embed all:locales
var locales embed.FS

const domain = "sitetrans"

// LangEnv overrides the locale environment for sitetrans messages only.
const LangEnv = "SITETRANS_LANG"

// fallbackLang is the language the messages are written in.
const fallbackLang = "en"

var (
	catalog *gotext.Locale
	active  = fallbackLang
)

// Init loads the catalog that best matches lang. An empty lang is read
// from SITETRANS_LANG, then the gettext variables LANGUAGE, LC_ALL,
// LC_MESSAGES and LANG.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	active = matchCatalog(lang)

	catalog = gotext.NewLocaleFSWithPath(active, locales, "locales")
	catalog.AddDomain(domain)
	catalog.SetDomain(domain)
}

// Language returns the catalog chosen by the last Init.
func Language() string {
	return active
}

// T returns the translation of msgid, or msgid itself.
func T(msgid string) string {
	if catalog == nil {
		return msgid
	}
	return catalog.Get(msgid)
}

// N picks the plural form for n using the catalog's plural formula.
func N(singular, plural string, n int) string {
	if catalog == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return catalog.GetN(singular, plural, n)
}

func detectLanguage() string {
	for _, env := range []string{LangEnv, "LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		val, _, _ = strings.Cut(val, ".")
		val, _, _ = strings.Cut(val, "@")
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		return val
	}
	return fallbackLang
}

// catalogs lists the embedded locale directory names.
func catalogs() []string {
	entries, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// matchCatalog maps a POSIX locale name such as pt_BR or nl_BE onto an
// embedded catalog, or English when none is close enough.
func matchCatalog(lang string) string {
	want, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return fallbackLang
	}

	names := []string{fallbackLang}
	tags := []language.Tag{language.English}
	for _, name := range catalogs() {
		tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
		if err != nil {
			continue
		}
		names = append(names, name)
		tags = append(tags, tag)
	}

	_, idx, conf := language.NewMatcher(tags).Match(want)
	if conf == language.No {
		return fallbackLang
	}
	return names[idx]
}
