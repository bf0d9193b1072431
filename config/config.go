// Package config handles .sitetrans.yaml, the project configuration file.
//
// The file is optional. Without it every setting takes its default and the
// target languages are detected from the artifacts already present in the
// content directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/lumenworks/sitetrans/translate"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".sitetrans.yaml"

// Defaults applied by Load.
const (
	DefaultSourceLang      = "en"
	DefaultContentDir      = "public/translations"
	DefaultRecoveryDir     = "downloads"
	DefaultDatabase        = "sitetrans.db"
	DefaultProvider        = translate.ProviderOpenAI
	DefaultTemperature     = 0.3
	DefaultTimeout         = 2 * time.Minute
	DefaultRequestDelay    = time.Second
	DefaultRecordMaxTokens = 8000
	DefaultServerAddr      = ":8080"
)

var urlPattern = regexp.MustCompile(`^https?://[^\s]+$`)

// File is the top-level .sitetrans.yaml structure.
type File struct {
	// SourceLang is the language of the baseline content (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// Languages lists the target languages. Detected from ContentDir when empty.
	Languages []string `yaml:"languages,omitempty"`
	// ContentDir holds <lang>.json UI string tables, relative to the file.
	ContentDir string `yaml:"content_dir,omitempty"`
	// RecoveryDir receives artifacts the endpoint failed to persist.
	RecoveryDir string `yaml:"recovery_dir,omitempty"`
	// Database is the SQLite file holding content records.
	Database string `yaml:"database,omitempty"`

	// --- model ---

	Provider    string  `yaml:"provider,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Proxy       string  `yaml:"proxy,omitempty"`
	// Temperature of 0 selects the default.
	Temperature float32 `yaml:"temperature,omitempty"`
	// Timeout bounds a single model call.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// RequestDelay is the pause between model calls in a batch.
	RequestDelay    time.Duration `yaml:"request_delay,omitempty"`
	RecordMaxTokens int           `yaml:"record_max_tokens,omitempty"`
	// Acronyms stay untranslated. Empty means the built-in list.
	Acronyms []string `yaml:"acronyms,omitempty"`
	// Hydrate lists sections some models return at the top level instead
	// of at their nested location.
	Hydrate []translate.HydrationRule `yaml:"hydrate,omitempty"`

	// --- records ---

	Records []RecordKind `yaml:"records,omitempty"`

	// --- persistence ---

	Endpoint Endpoint `yaml:"endpoint,omitempty"`
	Server   Server   `yaml:"server,omitempty"`

	// path is the file this configuration was read from ("" for defaults).
	path string
	// root is the directory relative paths are resolved against.
	root string
}

// RecordKind declares a content record kind to translate.
type RecordKind struct {
	Kind string `yaml:"kind"`
	// Exclude names fields copied verbatim instead of translated
	// (images, ordering, icons).
	Exclude []string `yaml:"exclude,omitempty"`
}

// Endpoint is the deployed artifact persistence endpoint. When URL is empty
// artifacts are written straight into ContentDir.
type Endpoint struct {
	URL   string `yaml:"url,omitempty"`
	Token string `yaml:"token,omitempty"`
}

// Server configures `sitetrans serve`.
type Server struct {
	Addr  string `yaml:"addr,omitempty"`
	Token string `yaml:"token,omitempty"`
	// DefaultLang is used when a request names neither filename nor lang.
	DefaultLang string `yaml:"default_lang,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads and validates .sitetrans.yaml from rootDir. A missing file
// yields the defaults.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	f := &File{root: rootDir}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		f.path = path
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	f.applyDefaults()
	if err := f.Validate(); err != nil {
		if f.path == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if f.SourceLang == "" {
		f.SourceLang = DefaultSourceLang
	}
	if f.ContentDir == "" {
		f.ContentDir = DefaultContentDir
	}
	if f.RecoveryDir == "" {
		f.RecoveryDir = DefaultRecoveryDir
	}
	if f.Database == "" {
		f.Database = DefaultDatabase
	}
	if f.Provider == "" {
		f.Provider = DefaultProvider
	}
	if f.Temperature == 0 {
		f.Temperature = DefaultTemperature
	}
	if f.Timeout == 0 {
		f.Timeout = DefaultTimeout
	}
	if f.RequestDelay == 0 {
		f.RequestDelay = DefaultRequestDelay
	}
	if f.RecordMaxTokens == 0 {
		f.RecordMaxTokens = DefaultRecordMaxTokens
	}
	if f.Server.Addr == "" {
		f.Server.Addr = DefaultServerAddr
	}
	if f.Server.DefaultLang == "" {
		f.Server.DefaultLang = f.SourceLang
	}
}

// Validate checks field values after defaults are applied.
func (f *File) Validate() error {
	errs := validation.Errors{}

	if !isLangCode(f.SourceLang) {
		errs["source_lang"] = validation.NewError("config.source_lang_invalid", fmt.Sprintf("%q is not a language code", f.SourceLang))
	}
	for _, lang := range f.Languages {
		if !isLangCode(lang) {
			errs["languages"] = validation.NewError("config.language_invalid", fmt.Sprintf("%q is not a language code", lang))
			break
		}
		if lang == f.SourceLang {
			errs["languages"] = validation.NewError("config.language_is_source", fmt.Sprintf("%q is the source language", lang))
			break
		}
	}

	ids := translate.ProviderIDs()
	known := make([]any, len(ids))
	for i, id := range ids {
		known[i] = id
	}
	if err := validation.Validate(f.Provider, validation.In(known...).Error("must be one of "+strings.Join(ids, ", "))); err != nil {
		errs["provider"] = err
	}
	if f.Temperature < 0 || f.Temperature > 2 {
		errs["temperature"] = validation.NewError("config.temperature_invalid", "temperature must be between 0 and 2")
	}
	if f.Timeout < 0 || f.RequestDelay < 0 {
		errs["timeout"] = validation.NewError("config.duration_invalid", "timeout and request_delay must be positive")
	}
	if f.RecordMaxTokens < 0 {
		errs["record_max_tokens"] = validation.NewError("config.max_tokens_invalid", "record_max_tokens must be positive")
	}

	for i, rule := range f.Hydrate {
		if rule.Into == "" {
			errs["hydrate"] = validation.NewError("config.hydrate_into_required", fmt.Sprintf("hydrate #%d has no into", i+1))
			break
		}
	}

	seen := make(map[string]bool)
	for i, rk := range f.Records {
		if rk.Kind == "" {
			errs["records"] = validation.NewError("config.record_kind_required", fmt.Sprintf("records #%d has no kind", i+1))
			break
		}
		if seen[rk.Kind] {
			errs["records"] = validation.NewError("config.record_kind_duplicate", fmt.Sprintf("record kind %q declared twice", rk.Kind))
			break
		}
		seen[rk.Kind] = true
	}

	if err := validation.Validate(f.Endpoint.URL, validation.Match(urlPattern).Error("must be an http(s) URL")); err != nil {
		errs["endpoint.url"] = err
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolving
// ---------------------------------------------------------------------------

// Path returns the file this configuration was loaded from, or "" when the
// defaults are in use.
func (f *File) Path() string {
	return f.path
}

// Abs resolves p relative to the configuration root.
func (f *File) Abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	root, err := filepath.Abs(f.root)
	if err != nil {
		root = f.root
	}
	return filepath.Join(root, p)
}

// AbsContentDir returns the absolute content directory.
func (f *File) AbsContentDir() string {
	return f.Abs(f.ContentDir)
}

// AbsRecoveryDir returns the absolute recovery directory.
func (f *File) AbsRecoveryDir() string {
	return f.Abs(f.RecoveryDir)
}

// AbsDatabase returns the absolute database path.
func (f *File) AbsDatabase() string {
	return f.Abs(f.Database)
}

// SourcePath returns the baseline UI string table, e.g. public/translations/en.json.
func (f *File) SourcePath() string {
	return filepath.Join(f.AbsContentDir(), f.SourceLang+".json")
}

// ArtifactName returns the artifact file name for a language.
func ArtifactName(lang string) string {
	return lang + ".json"
}

// TargetLanguages returns the configured languages, or those detected from
// the content directory when none are configured.
func (f *File) TargetLanguages() []string {
	if len(f.Languages) > 0 {
		return f.Languages
	}
	return detectLanguages(f.AbsContentDir(), f.SourceLang)
}

// RecordKind returns the declaration for kind, or a bare one when kind is
// not configured.
func (f *File) RecordKind(kind string) RecordKind {
	for _, rk := range f.Records {
		if rk.Kind == kind {
			return rk
		}
	}
	return RecordKind{Kind: kind}
}

// detectLanguages finds language codes from <lang>.json files in a directory.
// Raw counterparts and the source language are skipped.
func detectLanguages(dir, sourceLang string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var langs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".raw.json") {
			continue
		}
		lang := strings.TrimSuffix(name, ".json")
		if lang != sourceLang && isLangCode(lang) {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// isLangCode checks if a string looks like a language code.
// Supports: en, nl, pt-BR, zh-CN and the underscore form pt_BR.
func isLangCode(s string) bool {
	if len(s) == 2 {
		return s[0] >= 'a' && s[0] <= 'z' && s[1] >= 'a' && s[1] <= 'z'
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
	if len(parts) == 2 && len(parts[0]) == 2 && len(parts[1]) >= 2 && len(s) == len(parts[0])+1+len(parts[1]) {
		return parts[0][0] >= 'a' && parts[0][0] <= 'z' &&
			parts[0][1] >= 'a' && parts[0][1] <= 'z'
	}
	return false
}
