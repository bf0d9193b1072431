package translate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Prompt names used in prompts.json.
const (
	PromptDocument = "document"
	PromptRecord   = "record"
)

// DefaultAcronyms are domain terms the model must leave untranslated.
var DefaultAcronyms = []string{
	"AI", "ML", "ERP", "CRM", "SAP", "ETL", "BI", "KPI", "ROI",
	"SaaS", "API", "GDPR", "ISO", "IT", "HR", "CEO", "CFO", "CTO",
}

// PromptsConfig holds system prompts loaded from prompts.json.
type PromptsConfig struct {
	Prompts map[string]string `json:"prompts"`
}

// DefaultPrompts returns the built-in system prompts keyed by name.
func DefaultPrompts() map[string]string {
	return map[string]string{
		PromptDocument: DocumentSystemPrompt,
		PromptRecord:   RecordSystemPrompt,
	}
}

// LoadPrompts reads prompt overrides from path. A missing file yields no
// overrides and no error.
func LoadPrompts(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var config PromptsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return config.Prompts, nil
}

// WriteDefaultPrompts writes the built-in prompts to path so operators have
// a file to edit. An existing file is left alone.
func WriteDefaultPrompts(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(PromptsConfig{Prompts: DefaultPrompts()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling default prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing default prompts file: %w", err)
	}
	return nil
}

// renderPrompt fills the {{targetLang}} and {{acronyms}} placeholders.
func renderPrompt(prompt, langName string, acronyms []string) string {
	r := strings.NewReplacer(
		"{{targetLang}}", langName,
		"{{acronyms}}", strings.Join(acronyms, ", "),
	)
	return r.Replace(prompt)
}

// ---------------------------------------------------------------------------
// Built-in prompts
// ---------------------------------------------------------------------------

const DocumentSystemPrompt = `You are a professional translator for the website of an IT consulting company. You are translating the complete UI string table of the site into {{targetLang}}.

The user message is a JSON object. Translate it into {{targetLang}}.

RULES:
1. Translate only the string values. Never translate, rename, add or remove keys.
2. Keep every array element-for-element: same number of items, same order.
3. Keep numbers, booleans and null exactly as they are.
4. Do not translate these terms; copy them verbatim: {{acronyms}}.
5. Keep placeholders like {{name}}, {count}, %s, HTML tags and URLs unchanged.
6. Use natural, professional {{targetLang}} suitable for business readers, not word-for-word translations.

OUTPUT:
- Respond with the translated JSON object only.
- No explanations, no commentary, no markdown code fences.
- The JSON must be complete: every brace and bracket closed.`

const RecordSystemPrompt = `You are a professional translator for the website of an IT consulting company. You are translating one content record (a service, case study, FAQ entry or similar) into {{targetLang}}.

The user message is a JSON object with the record's text fields. Translate it into {{targetLang}}.

RULES:
1. Translate only the string values. Never translate, rename, add or remove keys.
2. Keep every array element-for-element: same number of items, same order.
3. Do not translate these terms; copy them verbatim: {{acronyms}}.
4. Keep Markdown formatting, HTML tags, URLs and placeholders unchanged.

OUTPUT:
- Respond with the translated JSON object only, with no prose and no markdown code fences.
- The JSON must be complete.`
