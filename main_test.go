package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"

	"github.com/lumenworks/sitetrans/config"
	"github.com/lumenworks/sitetrans/settings"
	"github.com/lumenworks/sitetrans/translate"
)

func init() {
	color.NoColor = true
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{name: "clamps below zero", percent: -10, width: 4, want: "░░░░   0%"},
		{name: "mid range", percent: 50, width: 4, want: "██░░  50%"},
		{name: "clamps above hundred", percent: 120, width: 4, want: "████ 100%"},
	}

	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLangHelpers(t *testing.T) {
	langs := []string{"en", "pt-BR", "zh-Hant"}
	if got := langColumnWidth(langs); got != len("zh-Hant") {
		t.Fatalf("langColumnWidth() = %d, want %d", got, len("zh-Hant"))
	}

	cell := langCell("pt-BR", 6)
	if !strings.Contains(cell, "\U0001F1E7\U0001F1F7") || !strings.Contains(cell, "pt-BR") {
		t.Fatalf("langCell() = %q, want flag and language code", cell)
	}

	if got := parseLangs(" nl, de,,fr "); !reflect.DeepEqual(got, []string{"nl", "de", "fr"}) {
		t.Fatalf("parseLangs() = %#v", got)
	}

	if got := filterOutLang([]string{"en", "fr", "en", "de"}, "en"); !reflect.DeepEqual(got, []string{"fr", "de"}) {
		t.Fatalf("filterOutLang() = %#v", got)
	}
}

func TestCountTranslated(t *testing.T) {
	baseline := map[string]any{
		"home":  map[string]any{"title": "Welcome", "cta": "ERP"},
		"items": []any{"a", "b"},
		"order": json.Number("3"),
	}
	tree := map[string]any{
		"home":  map[string]any{"title": "Welkom", "cta": "ERP"},
		"items": []any{"x"},
	}
	if got := countLeaves(baseline); got != 4 {
		t.Fatalf("countLeaves() = %d, want 4", got)
	}
	if got := countTranslated(baseline, tree); got != 1 {
		t.Fatalf("countTranslated() = %d, want 1", got)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("ok"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	if !fileExists(filePath) {
		t.Fatalf("fileExists(file) = false, want true")
	}
	if fileExists(dir) {
		t.Fatalf("fileExists(directory) = true, want false")
	}
	if fileExists(filepath.Join(dir, "missing.txt")) {
		t.Fatalf("fileExists(missing) = true, want false")
	}
}

func TestResolveProviderLayers(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(settings.APIKeyEnv, "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "groq-env")

	cfg := &config.File{Provider: "groq", Model: "llama-3.3-70b-versatile", Proxy: "http://proxy:3128"}
	prov := resolveProvider(cfg, modelArgs{})
	if prov.ID != "groq" || prov.Model != "llama-3.3-70b-versatile" || prov.APIKey != "groq-env" || prov.Proxy != "http://proxy:3128" {
		t.Fatalf("resolveProvider(config) = %#v", prov)
	}

	prov = resolveProvider(cfg, modelArgs{provider: "openai", apiKey: "flag"})
	if prov.ID != "openai" || prov.Model != "gpt-4o-mini" || prov.APIKey != "flag" {
		t.Fatalf("flags should override config model for another provider, got %#v", prov)
	}

	if err := validateProvider(resolveProvider(&config.File{Provider: "openrouter", Model: "x"}, modelArgs{})); err == nil {
		t.Fatal("openrouter without key should fail validation")
	}
}

// ---------------------------------------------------------------------------
// Command runs
// ---------------------------------------------------------------------------

func chatServer(t *testing.T, reply string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test",
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupProject(t *testing.T, baseURL string) string {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("LANGUAGE", "en")
	t.Setenv("SITETRANS_LANG", "")
	for _, name := range []string{settings.APIKeyEnv, settings.EndpointTokenEnv, "OPENAI_API_KEY"} {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	cfg := fmt.Sprintf("languages: [nl]\n"+
		"provider: custom-openai\n"+
		"model: test\n"+
		"base_url: %s\n"+
		"request_delay: 1ms\n"+
		"records:\n"+
		"  - kind: service\n"+
		"    exclude: [image]\n", baseURL)
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	content := filepath.Join(dir, config.DefaultContentDir)
	if err := os.MkdirAll(content, 0755); err != nil {
		t.Fatal(err)
	}
	baseline := `{"home":{"title":"Welcome","items":["a","b","c"]}}`
	if err := os.WriteFile(filepath.Join(content, "en.json"), []byte(baseline), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func execute(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() { rootDir, verbose, jsonLogs = ".", false, false })
	return cmd.Execute()
}

func TestTranslateCommandEndToEnd(t *testing.T) {
	var hits int32
	srv := chatServer(t, "```json\n{\"home\":{\"title\":\"Welkom\",\"items\":[\"a\",\"b\"]}}\n```", &hits)
	dir := setupProject(t, srv.URL+"/v1")

	if err := execute(t, "", "translate", "--root", dir); err != nil {
		t.Fatalf("translate error: %v", err)
	}

	content := filepath.Join(dir, config.DefaultContentDir)
	got, err := readTree(filepath.Join(content, "nl.json"))
	if err != nil {
		t.Fatalf("reading nl.json: %v", err)
	}
	want := map[string]any{"home": map[string]any{"title": "Welkom", "items": []any{"a", "b", "c"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("nl.json = %#v, want %#v", got, want)
	}
	raw, err := os.ReadFile(filepath.Join(content, "nl.raw.json"))
	if err != nil || !strings.HasPrefix(string(raw), "```json") {
		t.Fatalf("nl.raw.json = %q, %v", raw, err)
	}
	if !fileExists(filepath.Join(dir, "sitetrans.lock")) {
		t.Fatal("lock file not written")
	}

	if err := execute(t, "", "translate", "--root", dir); err != nil {
		t.Fatalf("second translate error: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("model called %d times, want 1 (unchanged baseline skipped)", n)
	}

	if err := execute(t, "", "translate", "--root", dir, "--force"); err != nil {
		t.Fatalf("forced translate error: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("model called %d times after --force, want 2", n)
	}
}

func TestTranslateDryRunCallsNothing(t *testing.T) {
	var hits int32
	srv := chatServer(t, "{}", &hits)
	dir := setupProject(t, srv.URL+"/v1")

	if err := execute(t, "", "translate", "--root", dir, "--dry-run", "--lang", "nl,de"); err != nil {
		t.Fatalf("dry run error: %v", err)
	}
	if hits != 0 {
		t.Fatalf("dry run called the model %d times", hits)
	}
	if fileExists(filepath.Join(dir, config.DefaultContentDir, "nl.json")) {
		t.Fatal("dry run wrote an artifact")
	}
}

func TestTranslateFailureReturnsError(t *testing.T) {
	var hits int32
	srv := chatServer(t, "I cannot help with that.", &hits)
	dir := setupProject(t, srv.URL+"/v1")

	err := execute(t, "", "translate", "--root", dir)
	if err == nil || !strings.Contains(err.Error(), "1 job failed") {
		t.Fatalf("expected failed job error, got %v", err)
	}
	if !fileExists(filepath.Join(dir, config.DefaultContentDir, "nl.raw.json")) {
		t.Fatal("raw response must be kept when parsing fails")
	}
}

func TestRecordsImportAndTranslate(t *testing.T) {
	var hits int32
	srv := chatServer(t, `{"title":"Cloudmigratie"}`, &hits)
	dir := setupProject(t, srv.URL+"/v1")

	seed := filepath.Join(dir, "records.json")
	if err := os.WriteFile(seed, []byte(`[{"kind":"service","slug":"cloud","locale":"en","fields":{"title":"Cloud migration","image":"/img/cloud.png"}}]`), 0644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "", "records", "import", seed, "--root", dir); err != nil {
		t.Fatalf("records import error: %v", err)
	}
	if err := execute(t, "", "records", "translate", "--root", dir); err != nil {
		t.Fatalf("records translate error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("model called %d times, want 1", hits)
	}
	if !fileExists(filepath.Join(dir, config.DefaultRecoveryDir, "records", "service", "cloud.nl.raw.json")) {
		t.Fatal("raw record response not kept in recovery dir")
	}
	if err := execute(t, "", "records", "list", "--root", dir, "--locale", "nl"); err != nil {
		t.Fatalf("records list error: %v", err)
	}
	if err := execute(t, "", "status", "--root", dir); err != nil {
		t.Fatalf("status error: %v", err)
	}
}

func TestAuthLoginFromStdin(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(settings.EndpointTokenEnv, "")

	if err := execute(t, "gsk_0123456789\n", "auth", "login", "--provider", "groq"); err != nil {
		t.Fatalf("auth login error: %v", err)
	}
	if got := settings.GetAPIKey("groq"); got != "gsk_0123456789" {
		t.Fatalf("stored key = %q", got)
	}

	if err := execute(t, "5\ntok\n", "auth", "login"); err != nil {
		t.Fatalf("interactive login error: %v", err)
	}
	if got := settings.ResolveEndpointToken(""); got != "tok" {
		t.Fatalf("endpoint token = %q, want tok", got)
	}

	if err := execute(t, "", "auth", "logout", "--provider", "groq"); err != nil {
		t.Fatalf("auth logout error: %v", err)
	}
	if got := settings.GetAPIKey("groq"); got != "" {
		t.Fatalf("key after logout = %q", got)
	}

	if err := execute(t, "", "auth", "login", "--provider", "acme"); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

func TestPromptsInit(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("LANGUAGE", "en")
	t.Setenv("SITETRANS_LANG", "")

	if err := execute(t, "", "prompts", "init"); err != nil {
		t.Fatalf("prompts init error: %v", err)
	}
	path, err := settings.PromptsFilePath()
	if err != nil {
		t.Fatalf("PromptsFilePath: %v", err)
	}
	got, err := translate.LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	if !reflect.DeepEqual(got, translate.DefaultPrompts()) {
		t.Fatalf("prompts file = %v, want defaults", got)
	}

	if err := os.WriteFile(path, []byte(`{"prompts":{"document":"custom"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, "", "prompts", "init"); err != nil {
		t.Fatalf("second prompts init error: %v", err)
	}
	got, _ = translate.LoadPrompts(path)
	if got["document"] != "custom" {
		t.Fatalf("existing prompts overwritten: %v", got)
	}
}
