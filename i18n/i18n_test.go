package i18n

import "testing"

func clearLocaleEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{LangEnv, "LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		t.Setenv(env, "")
	}
}

func restoreCatalog(t *testing.T) {
	t.Helper()
	oldCatalog, oldActive := catalog, active
	t.Cleanup(func() { catalog, active = oldCatalog, oldActive })
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"SITETRANS_LANG wins", map[string]string{LangEnv: "nl", "LANGUAGE": "de_DE"}, "nl"},
		{"first LANGUAGE entry", map[string]string{"LANGUAGE": "nl_BE.UTF-8:en_US", "LC_ALL": "de_DE.UTF-8"}, "nl_BE"},
		{"C and POSIX skipped", map[string]string{"LANGUAGE": "C", "LC_ALL": "POSIX", "LC_MESSAGES": "fr_FR.UTF-8"}, "fr_FR"},
		{"modifier stripped", map[string]string{"LANG": "nl_NL@euro"}, "nl_NL"},
		{"nothing set", nil, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLocaleEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := detectLanguage(); got != tt.want {
				t.Fatalf("detectLanguage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchCatalog(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"nl", "nl"},
		{"nl_NL", "nl"},
		{"nl-BE", "nl"},
		{"en_GB", "en"},
		{"ja", "en"},
		{"not a locale!", "en"},
	}
	for _, tt := range tests {
		if got := matchCatalog(tt.lang); got != tt.want {
			t.Errorf("matchCatalog(%q) = %q, want %q", tt.lang, got, tt.want)
		}
	}
}

func TestTAndNFallbackWhenUninitialized(t *testing.T) {
	restoreCatalog(t)
	catalog = nil

	if got := T("interrupted"); got != "interrupted" {
		t.Fatalf("T fallback = %q, want %q", got, "interrupted")
	}
	if got := N("%d job failed", "%d jobs failed", 1); got != "%d job failed" {
		t.Fatalf("N singular fallback = %q", got)
	}
	if got := N("%d job failed", "%d jobs failed", 2); got != "%d jobs failed" {
		t.Fatalf("N plural fallback = %q", got)
	}
}

func TestEmbeddedDutchCatalog(t *testing.T) {
	restoreCatalog(t)

	Init("nl_BE")
	if got := Language(); got != "nl" {
		t.Fatalf("Language() = %q, want nl", got)
	}
	if got := T("interrupted"); got != "onderbroken" {
		t.Fatalf("T(interrupted) = %q, want %q", got, "onderbroken")
	}
	if got := N("%d job failed", "%d jobs failed", 3); got != "%d taken mislukt" {
		t.Fatalf("N plural = %q, want %q", got, "%d taken mislukt")
	}
	if got := T("untranslated message"); got != "untranslated message" {
		t.Fatalf("T passthrough = %q", got)
	}
}

func TestInitFromEnvironment(t *testing.T) {
	restoreCatalog(t)
	clearLocaleEnv(t)
	t.Setenv(LangEnv, "ja_JP")

	Init("")
	if got := Language(); got != "en" {
		t.Fatalf("Language() = %q, want en", got)
	}
	if got := T("interrupted"); got != "interrupted" {
		t.Fatalf("T = %q, want untranslated", got)
	}
}
