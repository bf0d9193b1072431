package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenworks/sitetrans/artifact"
	"github.com/lumenworks/sitetrans/config"
	"github.com/lumenworks/sitetrans/content"
	"github.com/lumenworks/sitetrans/i18n"
	"github.com/lumenworks/sitetrans/langmeta"
	"github.com/lumenworks/sitetrans/lockfile"
	"github.com/lumenworks/sitetrans/settings"
	"github.com/lumenworks/sitetrans/translate"
)

// ---------------------------------------------------------------------------
// translate (UI string table)
// ---------------------------------------------------------------------------

// modelArgs are the provider flags shared by translate and records translate.
type modelArgs struct {
	langs                            string
	provider, apiKey, model, baseURL string
	proxy                            string
	timeout, requestDelay            time.Duration
	dryRun, force                    bool
}

func addModelFlags(cmd *cobra.Command, a *modelArgs) {
	cmd.Flags().StringVar(&a.langs, "lang", "", "Languages to translate (comma-separated, default: all configured)")
	cmd.Flags().StringVar(&a.provider, "provider", "", "Provider: "+strings.Join(translate.ProviderIDs(), ", ")+" (default from config)")
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (default from config)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or "+settings.APIKeyEnv+" env var)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Timeout of one model call (default from config, 2m)")
	cmd.Flags().DurationVar(&a.requestDelay, "request-delay", 0, "Pause between model calls (default from config, 1s)")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Show payload sizes and token budgets without calling the model")
	cmd.Flags().BoolVar(&a.force, "force", false, "Translate even when the baseline is unchanged since the last run")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, id := range translate.ProviderIDs() {
			out = append(out, id+"\t"+translate.DefaultProviders()[id].Name)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

func newTranslateCmd() *cobra.Command {
	var a modelArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the UI string table",
		Long: `Translate the UI string table (<content_dir>/<source_lang>.json) into every
target language, one model call per language.

Each call writes <lang>.raw.json with the literal model response before the
response is parsed, then <lang>.json with the merged result. Values missing,
empty or malformed in the model output fall back to English and are listed
as substitutions. A language whose baseline is unchanged since its last
successful run is skipped unless --force is given.

Examples:
  sitetrans translate --lang nl,de
  sitetrans translate --provider groq --model llama-3.3-70b-versatile
  sitetrans translate --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), a)
		},
	}
	addModelFlags(cmd, &a)
	return cmd
}

func runTranslate(ctx context.Context, a modelArgs) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}
	langs, err := targetLanguages(cfg, a.langs)
	if err != nil {
		return err
	}

	baseline, err := readTree(cfg.SourcePath())
	if err != nil {
		if isNotExist(err) {
			return fmt.Errorf(i18n.T("baseline %s not found, set content_dir and source_lang in %s"), cfg.SourcePath(), config.FileName)
		}
		return err
	}

	store := newArtifactStore(cfg)
	jobs := make([]translate.Job, 0, len(langs))
	for _, lang := range langs {
		name := config.ArtifactName(lang)
		jobs = append(jobs, translate.Job{
			Scope:    lockfile.DocumentScope,
			Lang:     lang,
			Baseline: baseline,
			Budget:   translate.BudgetDocument,
			Artifact: name,
			Sink:     translate.ArtifactSink{Store: store, Name: name},
		})
	}

	logInfo(i18n.T("Translating %s into %s"), cfg.SourcePath(), strings.Join(langs, ", "))
	return runJobs(ctx, cfg, a, store, jobs, nil)
}

// ---------------------------------------------------------------------------
// records (content records)
// ---------------------------------------------------------------------------

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Translate, list and import content records",
		Long: `Work with the dynamic content records (services, case studies, FAQ
entries) stored in the SQLite database named by 'database' in .sitetrans.yaml.

Records are translated one at a time from the source locale. Fields listed
under 'exclude' for their kind (images, ordering, icons) are copied verbatim
into the translated record.`,
	}

	cmd.AddCommand(
		newRecordsTranslateCmd(),
		newRecordsListCmd(),
		newRecordsImportCmd(),
	)
	return cmd
}

func newRecordsTranslateCmd() *cobra.Command {
	var (
		a     modelArgs
		kinds string
		slug  string
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate content records",
		Long: `Translate source-locale content records into every target language.

Raw model responses are kept in the recovery directory as
records/<kind>/<slug>.<lang>.raw.json.

Examples:
  sitetrans records translate --kind service --lang nl
  sitetrans records translate --kind faq --slug pricing --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsTranslate(cmd.Context(), a, parseLangs(kinds), slug)
		},
	}
	addModelFlags(cmd, &a)
	cmd.Flags().StringVar(&kinds, "kind", "", "Record kinds (comma-separated, default: all configured)")
	cmd.Flags().StringVar(&slug, "slug", "", "Translate a single record")
	return cmd
}

func runRecordsTranslate(ctx context.Context, a modelArgs, kinds []string, slug string) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}
	langs, err := targetLanguages(cfg, a.langs)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		for _, rk := range cfg.Records {
			kinds = append(kinds, rk.Kind)
		}
	}
	if len(kinds) == 0 {
		return errors.New(i18n.T("no record kinds: declare records in .sitetrans.yaml or pass --kind"))
	}

	db, err := content.Open(cfg.AbsDatabase())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := content.Migrate(ctx, db); err != nil {
		return err
	}
	repo := content.NewBunRepository(db)
	recovery := artifact.NewFileStore(cfg.AbsRecoveryDir())

	var jobs []translate.Job
	for _, kind := range kinds {
		records, err := repo.List(ctx, content.Filter{Kind: kind, Slug: slug, Locale: cfg.SourceLang})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			logWarning(i18n.T("No %s records in locale %s"), kind, cfg.SourceLang)
			continue
		}
		jobs = append(jobs, content.Jobs(repo, recovery, records, cfg.RecordKind(kind).Exclude, langs)...)
	}
	if len(jobs) == 0 {
		return nil
	}

	var prune func(*lockfile.LockFile) error
	if slug == "" {
		prune = func(lock *lockfile.LockFile) error {
			return pruneLock(ctx, lock, repo, cfg.SourceLang, langs)
		}
	}

	logInfo(i18n.T("Translating %d record jobs (%s) into %s"), len(jobs), strings.Join(kinds, ", "), strings.Join(langs, ", "))
	return runJobs(ctx, cfg, a, recovery, jobs, prune)
}

// pruneLock forgets lock entries of records deleted from the source locale.
func pruneLock(ctx context.Context, lock *lockfile.LockFile, repo content.Repository, sourceLang string, langs []string) error {
	sources, err := repo.List(ctx, content.Filter{Locale: sourceLang})
	if err != nil {
		return err
	}
	valid := []string{lockfile.DocumentScope}
	for _, rec := range sources {
		valid = append(valid, lockfile.RecordScope(rec.Kind, rec.Slug))
	}
	for _, lang := range langs {
		lock.Clean(lang, valid)
	}
	return nil
}

func newRecordsListCmd() *cobra.Command {
	var kind, locale string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List content records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			db, err := content.Open(cfg.AbsDatabase())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := content.Migrate(cmd.Context(), db); err != nil {
				return err
			}

			records, err := content.NewBunRepository(db).List(cmd.Context(), content.Filter{Kind: kind, Locale: locale})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				logInfo(i18n.T("No records found"))
				return nil
			}
			fmt.Printf("%-12s %-28s %-7s %6s  %s\n", "KIND", "SLUG", "LOCALE", "FIELDS", "UPDATED")
			for _, rec := range records {
				fmt.Printf("%-12s %-28s %-7s %6d  %s\n", rec.Kind, rec.Slug, rec.Locale, len(rec.Fields), rec.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only records of this kind")
	cmd.Flags().StringVar(&locale, "locale", "", "Only records in this locale")
	return cmd
}

func newRecordsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import content records from a JSON array",
		Long: `Upsert content records from a JSON file holding an array of
{"kind", "slug", "locale", "fields"} objects. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}

			in := os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			db, err := content.Open(cfg.AbsDatabase())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := content.Migrate(cmd.Context(), db); err != nil {
				return err
			}

			n, err := content.Import(cmd.Context(), content.NewBunRepository(db), in)
			if err != nil {
				return err
			}
			logSuccess(i18n.N("Imported %d record into %s", "Imported %d records into %s", n), n, cfg.AbsDatabase())
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// Running jobs
// ---------------------------------------------------------------------------

// runJobs builds the translator, runs the batch and saves the lock file.
// prune, when set, runs against the lock before it is saved.
func runJobs(ctx context.Context, cfg *config.File, a modelArgs, raw artifact.Store, jobs []translate.Job, prune func(*lockfile.LockFile) error) error {
	lock, err := lockfile.Load(rootDir)
	if err != nil {
		return err
	}

	prompts, err := loadPrompts()
	if err != nil {
		logWarning(i18n.T("Ignoring custom prompts: %v"), err)
	}

	opts := translate.Options{
		Logger:          logger,
		Temperature:     cfg.Temperature,
		RecordMaxTokens: cfg.RecordMaxTokens,
		Timeout:         cfg.Timeout,
		RequestDelay:    cfg.RequestDelay,
		Acronyms:        cfg.Acronyms,
		Hydrations:      cfg.Hydrate,
		Prompts:         prompts,
		Lock:            lock,
		Force:           a.force,
	}
	if a.timeout > 0 {
		opts.Timeout = a.timeout
	}
	if a.requestDelay > 0 {
		opts.RequestDelay = a.requestDelay
	}

	if a.dryRun {
		printPlan(translate.New(nil, raw, opts), jobs)
		return nil
	}

	prov := resolveProvider(cfg, a)
	if err := validateProvider(prov); err != nil {
		return err
	}
	client, err := translate.NewOpenAIClient(prov)
	if err != nil {
		return err
	}
	logInfo(i18n.T("Provider: %s, model: %s"), prov.Name, prov.Model)

	opts.OnResult = func(done, total int, res translate.Result) {
		reportResult(done, total, res)
	}
	batch := translate.New(client, raw, opts).RunBatch(ctx, jobs)

	if prune != nil {
		if err := prune(lock); err != nil {
			logWarning(i18n.T("Cannot prune lock file: %v"), err)
		}
	}
	if batch.Succeeded > 0 {
		if err := lock.Save(); err != nil {
			logWarning(i18n.T("Cannot save lock file: %v"), err)
		}
	}

	fmt.Fprintln(os.Stderr)
	logInfo(i18n.T("Done: %d succeeded, %d failed, %d skipped, %d tokens (run %s)"),
		batch.Succeeded, batch.Failed, batch.Skipped, batch.Tokens, batch.RunID)
	if batch.Canceled {
		return errors.New(i18n.T("interrupted"))
	}
	if batch.Failed > 0 {
		return fmt.Errorf(i18n.N("%d job failed", "%d jobs failed", batch.Failed), batch.Failed)
	}
	return nil
}

func reportResult(done, total int, res translate.Result) {
	prefix := fmt.Sprintf("[%d/%d] %s %s", done, total, res.Scope, langmeta.EnglishName(res.Lang))
	switch {
	case res.Skipped:
		logInfo(i18n.T("%s: unchanged, skipped"), prefix)
	case res.Success:
		logSuccess(i18n.T("%s: %d tokens, %d substitutions -> %s"), prefix, res.Tokens, len(res.Substitutions), res.ArtifactPath)
		if verbose {
			for _, s := range res.Substitutions {
				fmt.Fprintf(os.Stderr, "      %s\n", s)
			}
		}
		if res.Fallback {
			logWarning(i18n.T("%s: endpoint unavailable, saved locally to %s"), prefix, res.ArtifactPath)
		}
	default:
		logError("%s: %v", prefix, res.Err)
		if res.RawPath != "" {
			logInfo(i18n.T("Raw response kept in %s"), res.RawPath)
		}
	}
}

func printPlan(t *translate.Translator, jobs []translate.Job) {
	fmt.Printf("%-28s %-7s %9s %8s %9s\n", "SCOPE", "LANG", "BYTES", "TOKENS", "MAX")
	for _, job := range jobs {
		est, err := t.Plan(job)
		if err != nil {
			logError("%s %s: %v", job.Scope, job.Lang, err)
			continue
		}
		state := ""
		if est.Skipped {
			state = "  (unchanged)"
		}
		fmt.Printf("%-28s %-7s %9d %8d %9d%s\n", est.Scope, est.Lang, est.PayloadBytes, est.Tokens, est.MaxTokens, state)
	}
}

// newArtifactStore writes to the deployed endpoint when one is configured and
// to the content directory otherwise; both fall back to the recovery directory.
func newArtifactStore(cfg *config.File) artifact.Store {
	var primary artifact.Store = artifact.NewFileStore(cfg.AbsContentDir())
	if cfg.Endpoint.URL != "" {
		primary = artifact.NewHTTPStore(cfg.Endpoint.URL, settings.ResolveEndpointToken(cfg.Endpoint.Token), 0)
	}
	return artifact.NewFallbackStore(primary, cfg.AbsRecoveryDir(), logger)
}

func loadPrompts() (map[string]string, error) {
	path, err := settings.PromptsFilePath()
	if err != nil {
		return nil, err
	}
	return translate.LoadPrompts(path)
}

// resolveProvider layers flags over the config file over provider defaults.
func resolveProvider(cfg *config.File, a modelArgs) translate.Provider {
	name := a.provider
	if name == "" {
		name = cfg.Provider
	}

	defaults := translate.DefaultProviders()
	prov, ok := defaults[strings.ToLower(name)]
	if !ok {
		prov = translate.Provider{
			ID:      translate.ProviderCustomOpenAI,
			Name:    name,
			Timeout: 60 * time.Second,
		}
	}

	switch {
	case a.baseURL != "":
		prov.BaseURL = a.baseURL
	case cfg.BaseURL != "" && (a.provider == "" || a.provider == cfg.Provider):
		prov.BaseURL = cfg.BaseURL
	case prov.ID == translate.ProviderCustomOpenAI:
		if storedURL := settings.GetBaseURL(prov.ID); storedURL != "" {
			prov.BaseURL = storedURL
		}
	}

	switch {
	case a.model != "":
		prov.Model = a.model
	case cfg.Model != "" && (a.provider == "" || a.provider == cfg.Provider):
		prov.Model = cfg.Model
	}

	prov.APIKey = settings.ResolveAPIKey(prov.ID, a.apiKey)
	prov.Proxy = cfg.Proxy
	if a.proxy != "" {
		prov.Proxy = a.proxy
	}
	if a.timeout > 0 {
		prov.Timeout = a.timeout
	} else if cfg.Timeout > prov.Timeout {
		prov.Timeout = cfg.Timeout
	}
	return prov
}

func validateProvider(prov translate.Provider) error {
	if prov.Model == "" {
		return fmt.Errorf("--model is required for provider '%s'\n\n"+
			"Set model in %s or pass --model MODEL_NAME", prov.ID, config.FileName)
	}

	switch prov.ID {
	case translate.ProviderCustomOpenAI:
		if prov.BaseURL == "" {
			return fmt.Errorf("provider 'custom-openai' requires an endpoint URL\n\n" +
				"Option 1: Configure via auth:\n" +
				"  sitetrans auth login --provider custom-openai\n\n" +
				"Option 2: Pass directly:\n" +
				"  --base-url https://api.example.com/v1")
		}

	case translate.ProviderOllama:
		client := &http.Client{Timeout: 2 * time.Second}
		tagsURL := strings.TrimSuffix(strings.TrimRight(prov.BaseURL, "/"), "/v1") + "/api/tags"
		resp, err := client.Get(tagsURL)
		if err != nil {
			return fmt.Errorf("provider 'ollama' requires Ollama server to be running\n\n" +
				"Start Ollama with: ollama serve\n" +
				"Install from: https://ollama.com")
		}
		resp.Body.Close()

	default:
		if translate.NeedsAPIKey(prov.ID) && prov.APIKey == "" {
			env := settings.EnvVarForProvider(prov.ID)
			return fmt.Errorf("provider '%s' requires an API key\n\n"+
				"Option 1: Store your API key:\n"+
				"  sitetrans auth login --provider %s\n\n"+
				"Option 2: Pass key directly:\n"+
				"  --api-key YOUR_KEY or export %s=YOUR_KEY (or %s)",
				prov.ID, prov.ID, settings.APIKeyEnv, env)
		}
	}

	return nil
}
