// sitetrans translates the marketing site's content with a chat-completion
// model and persists production-ready per-language artifacts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenworks/sitetrans/artifact"
	"github.com/lumenworks/sitetrans/config"
	"github.com/lumenworks/sitetrans/content"
	"github.com/lumenworks/sitetrans/i18n"
	"github.com/lumenworks/sitetrans/langmeta"
	"github.com/lumenworks/sitetrans/lockfile"
	"github.com/lumenworks/sitetrans/logging"
	"github.com/lumenworks/sitetrans/server"
	"github.com/lumenworks/sitetrans/settings"
	"github.com/lumenworks/sitetrans/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", blue("[INFO]"), fmt.Sprintf(format, args...))
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", green("[OK]"), fmt.Sprintf(format, args...))
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", yellow("[WARN]"), fmt.Sprintf(format, args...))
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", red("[ERROR]"), fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir  string
	verbose  bool
	jsonLogs bool

	// logger carries run summaries; replaced in PersistentPreRunE.
	logger = zap.NewNop()
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sitetrans",
		Short: i18n.T("Translate site content with a chat-completion model"),
		Long: `sitetrans translates the site's English content into additional languages.

The UI string table (public/translations/en.json) is sent as one document
per language; dynamic content records are translated one record at a time.
Model output is repaired, merged against the English baseline (English values
fill anything missing or malformed) and written as <lang>.json artifacts,
next to a <lang>.raw.json copy of the literal model response.

Commands:
  translate   Translate the UI string table
  records     Translate, list and import content records
  serve       Run the artifact persistence endpoint
  status      Show artifacts, coverage and record counts
  auth        Manage API keys and the endpoint token

Providers (OpenAI-compatible chat completions):
  openai         OpenAI, API key required
  groq           Groq, API key required
  openrouter     OpenRouter, API key required
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			i18n.Init("")
			if err := settings.LoadEnv(filepath.Join(rootDir, ".env")); err != nil {
				return err
			}
			l, err := logging.New(verbose, jsonLogs)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory (where .sitetrans.yaml lives)")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit structured logs as JSON")

	root.AddCommand(
		newTranslateCmd(),
		newRecordsCmd(),
		newServeCmd(),
		newStatusCmd(),
		newAuthCmd(),
		newPromptsCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sitetrans version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// prompts
// ---------------------------------------------------------------------------

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage the translation system prompts",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write the built-in prompts to prompts.json for editing",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := settings.PromptsFilePath()
				if err != nil {
					return err
				}
				existed := fileExists(path)
				if err := translate.WriteDefaultPrompts(path); err != nil {
					return err
				}
				if existed {
					logInfo(i18n.T("Prompts file already exists: %s"), path)
					return nil
				}
				logSuccess(i18n.T("Wrote default prompts to %s"), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the prompts file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := settings.PromptsFilePath()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)

	return cmd
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var (
		addr  string
		token string
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the artifact persistence endpoint",
		Long: `Serve POST /api/translations, the endpoint the admin back-office posts
translated content to. Artifacts are written into the content directory.

Body: {"content": {...}, "rawContent": "...", "filename": "nl.json", "lang": "nl"}
At least one of content and rawContent is required. Without filename the
artifact is named <lang>.json; rawContent is written as <base>.raw.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if token == "" {
				token = cfg.Server.Token
			}
			if dir == "" {
				dir = cfg.AbsContentDir()
			}

			srv := server.New(artifact.NewFileStore(dir), server.Options{
				Token:       token,
				DefaultLang: cfg.Server.DefaultLang,
				Logger:      logger,
			})
			logInfo(i18n.T("Serving %s on %s (artifacts in %s)"), server.TranslationsPath, addr, dir)
			if token == "" {
				logWarning(i18n.T("No server token configured, the endpoint accepts unauthenticated writes"))
			}
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token required from clients")
	cmd.Flags().StringVar(&dir, "dir", "", "Artifact directory (default: content_dir)")

	return cmd
}

// ---------------------------------------------------------------------------
// status (read-only)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show artifacts, coverage and record counts",
		Long: `Show the configuration in use, translation coverage per language and
the number of content records per locale. Does not modify any files.

Coverage counts the string leaves of an artifact whose value differs from
the English baseline; leaves still equal to the baseline are fallbacks or
untranslatable text such as acronyms.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), cfg)
		},
	}
}

func runStatus(ctx context.Context, cfg *config.File) error {
	fmt.Fprintf(os.Stderr, "\n%s\n", blue(i18n.T("Project")))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	cfgPath := cfg.Path()
	if cfgPath == "" {
		cfgPath = config.FileName + " " + i18n.T("(not found, using defaults)")
	}
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Config:", cfgPath)
	fmt.Fprintf(os.Stderr, "  %-14s %s (%s)\n", "Source:", cfg.SourcePath(), langmeta.EnglishName(cfg.SourceLang))
	fmt.Fprintf(os.Stderr, "  %-14s %s / %s\n", "Model:", cfg.Provider, orDash(cfg.Model))
	if cfg.Endpoint.URL != "" {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Endpoint:", cfg.Endpoint.URL)
	}

	baseline, err := readTree(cfg.SourcePath())
	if err != nil {
		logWarning(i18n.T("Cannot read baseline: %v"), err)
	}
	total := countLeaves(baseline)

	langs := cfg.TargetLanguages()
	fmt.Fprintf(os.Stderr, "\n%s\n", blue(i18n.T("UI strings")))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	if len(langs) == 0 {
		fmt.Fprintf(os.Stderr, "  %s\n", i18n.T("No target languages configured or detected."))
	}
	width := langColumnWidth(langs)
	for _, lang := range langs {
		path := filepath.Join(cfg.AbsContentDir(), config.ArtifactName(lang))
		raw := ""
		if fileExists(filepath.Join(cfg.AbsContentDir(), artifact.RawName(config.ArtifactName(lang)))) {
			raw = " +raw"
		}
		tree, err := readTree(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %s%s\n", langCell(lang, width), red(i18n.T("missing")), raw)
			continue
		}
		translated := countTranslated(baseline, tree)
		percent := 0
		if total > 0 {
			percent = translated * 100 / total
		}
		fmt.Fprintf(os.Stderr, "  %s %s  %d/%d%s\n", langCell(lang, width), progressBar(percent, 20), translated, total, raw)
	}

	if fileExists(cfg.AbsDatabase()) {
		db, err := content.Open(cfg.AbsDatabase())
		if err != nil {
			return err
		}
		defer db.Close()
		counts, err := content.NewBunRepository(db).CountByLocale(ctx, "")
		if err != nil {
			logWarning(i18n.T("Cannot count records: %v"), err)
		} else {
			fmt.Fprintf(os.Stderr, "\n%s\n", blue(i18n.T("Content records")))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			locales := make([]string, 0, len(counts))
			for l := range counts {
				locales = append(locales, l)
			}
			sort.Strings(locales)
			w := langColumnWidth(locales)
			for _, l := range locales {
				fmt.Fprintf(os.Stderr, "  %s %d\n", langCell(l, w), counts[l])
			}
		}
	}

	if lock, err := lockfile.Load(rootDir); err == nil {
		fmt.Fprintf(os.Stderr, "\n  %-14s %s\n", "Lock:", lock.Summary())
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// readTree decodes a JSON object file, keeping numbers as json.Number.
func readTree(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parsing %s: not a JSON object", path)
	}
	return tree, nil
}

// countLeaves counts the string leaves of a tree.
func countLeaves(v any) int {
	switch t := v.(type) {
	case map[string]any:
		n := 0
		for _, child := range t {
			n += countLeaves(child)
		}
		return n
	case []any:
		n := 0
		for _, child := range t {
			n += countLeaves(child)
		}
		return n
	case string:
		return 1
	}
	return 0
}

// countTranslated counts the string leaves of tree that differ from the
// baseline leaf at the same location.
func countTranslated(baseline, tree any) int {
	switch b := baseline.(type) {
	case map[string]any:
		t, _ := tree.(map[string]any)
		n := 0
		for k, child := range b {
			n += countTranslated(child, t[k])
		}
		return n
	case []any:
		t, _ := tree.([]any)
		if len(t) != len(b) {
			return 0
		}
		n := 0
		for i := range b {
			n += countTranslated(b[i], t[i])
		}
		return n
	case string:
		if s, ok := tree.(string); ok && s != "" && s != b {
			return 1
		}
	}
	return 0
}

// fileExists returns true if the file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// progressBar renders a colored bar followed by the percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	paint := red
	switch {
	case percent >= 100:
		paint = green
	case percent >= 50:
		paint = yellow
	}
	return fmt.Sprintf("%s %3d%%", paint(bar), percent)
}

func langColumnWidth(langs []string) int {
	w := 0
	for _, l := range langs {
		if len(l) > w {
			w = len(l)
		}
	}
	return w
}

// langCell renders "<flag> <code>" padded to width.
func langCell(lang string, width int) string {
	flag := langmeta.Resolve(lang).Flag
	if flag == "" {
		flag = "  "
	}
	return fmt.Sprintf("%s %-*s", flag, width, lang)
}

// parseLangs splits a comma-separated --lang value.
func parseLangs(s string) []string {
	var langs []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			langs = append(langs, part)
		}
	}
	return langs
}

// filterOutLang removes every occurrence of lang.
func filterOutLang(langs []string, lang string) []string {
	var out []string
	for _, l := range langs {
		if l != lang {
			out = append(out, l)
		}
	}
	return out
}

// targetLanguages applies --lang to the configured languages. Languages
// named on the command line need not be configured yet.
func targetLanguages(cfg *config.File, flag string) ([]string, error) {
	langs := cfg.TargetLanguages()
	if flag != "" {
		langs = parseLangs(flag)
	}
	langs = filterOutLang(langs, cfg.SourceLang)
	if len(langs) == 0 {
		return nil, errors.New(i18n.T("no target languages: set languages in .sitetrans.yaml or pass --lang"))
	}
	return langs, nil
}

// isNotExist reports a missing file behind a wrapped error.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
