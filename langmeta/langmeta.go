// Package langmeta resolves display metadata for language codes: English
// and native names for prompts and status output, plus an emoji flag.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	Code    string
	English string
	Native  string
	Flag    string
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	tag, err := language.Parse(normalized)
	if err != nil {
		return normalized
	}
	return tag.String()
}

// Resolve returns best-effort metadata for a language code. Variants like
// pt_BR and pt-BR are accepted. Unknown codes resolve to themselves.
func Resolve(lang string) Meta {
	code := canonicalize(lang)
	meta := Meta{Code: code, English: lang, Native: lang}
	tag, err := language.Parse(code)
	if err != nil || code == "" {
		return meta
	}

	if name := display.English.Tags().Name(tag); name != "" {
		meta.English = name
	}
	if name := display.Self.Name(tag); name != "" {
		meta.Native = name
	}
	if region, conf := tag.Region(); conf != language.No {
		meta.Flag = flag(region.String())
	}
	return meta
}

// EnglishName returns the English name of lang, e.g. "Dutch" for nl.
func EnglishName(lang string) string {
	return Resolve(lang).English
}

// NativeName returns the name of lang in that language, e.g. "Nederlands".
func NativeName(lang string) string {
	return Resolve(lang).Native
}

// flag maps an ISO 3166 alpha-2 region to its regional indicator pair.
func flag(region string) string {
	if len(region) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range strings.ToUpper(region) {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + (c - 'A'))
	}
	return b.String()
}
