package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumenworks/sitetrans/i18n"
	"github.com/lumenworks/sitetrans/settings"
	"github.com/lumenworks/sitetrans/translate"
)

// ---------------------------------------------------------------------------
// auth (credential store)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage API keys and the endpoint token",
		Long: `Manage credentials stored in $XDG_DATA_HOME/sitetrans/auth.json (mode 0600).

API key providers (paste your key):
  openai        OpenAI platform key
  groq          Groq Cloud key
  openrouter    OpenRouter key
  custom-openai API key + endpoint URL

Tokens:
  endpoint      Bearer token of the artifact persistence endpoint

No auth required:
  ollama        Local Ollama server

Examples:
  sitetrans auth login                       Interactive selection
  sitetrans auth login --provider groq       Store a Groq API key
  sitetrans auth logout --provider groq      Remove the Groq key
  sitetrans auth logout                      Remove all credentials
  sitetrans auth list                        Show stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// authEntries is the ordered list of credentials for the interactive menu.
var authEntries = []struct {
	id   string
	name string
	desc string
	url  string
}{
	{translate.ProviderOpenAI, "OpenAI", "API key", "https://platform.openai.com/api-keys"},
	{translate.ProviderGroq, "Groq Cloud", "API key, free tier available", "https://console.groq.com/keys"},
	{translate.ProviderOpenRouter, "OpenRouter", "API key, many models", "https://openrouter.ai/keys"},
	{translate.ProviderCustomOpenAI, "Custom OpenAI", "any OpenAI-compatible endpoint", ""},
	{settings.EndpointID, "Persistence endpoint", "bearer token for artifact uploads", ""},
}

func authEntryName(id string) (string, bool) {
	for _, e := range authEntries {
		if e.id == id {
			return e.name, true
		}
	}
	return "", false
}

func newAuthLoginCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key or token",
		Long: `Store an API key or token. If --provider is not specified, you will be
prompted to choose.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewScanner(cmd.InOrStdin())
			if provider == "" {
				choice, err := chooseAuthEntry(in, os.Stderr)
				if err != nil {
					return err
				}
				provider = choice
			}

			switch provider {
			case translate.ProviderCustomOpenAI:
				return authLoginCustomOpenAI(in)
			case settings.EndpointID:
				return authLoginSecret(in, provider, settings.SetEndpointToken)
			case translate.ProviderOllama:
				logInfo(i18n.T("Ollama needs no credentials"))
				return nil
			default:
				if _, ok := authEntryName(provider); !ok {
					return fmt.Errorf("unknown provider '%s', run 'sitetrans auth login' for options", provider)
				}
				return authLoginSecret(in, provider, func(key string) error {
					return settings.SetAPIKey(provider, key)
				})
			}
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to authenticate")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthEntries)
	return cmd
}

func completeAuthEntries(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	completions := make([]string, 0, len(authEntries))
	for _, e := range authEntries {
		completions = append(completions, fmt.Sprintf("%s\t%s", e.id, e.name))
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// chooseAuthEntry prints the menu and reads a number or an id.
func chooseAuthEntry(in *bufio.Scanner, out io.Writer) (string, error) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s\n\n", blue(i18n.T("Select credential to store:")))
	for i, e := range authEntries {
		fmt.Fprintf(out, "  %d. %s %s\n", i+1, yellow(fmt.Sprintf("%-14s", e.id)), e.desc)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, i18n.T("Enter choice (number or name): "))

	if !in.Scan() {
		return "", errors.New(i18n.T("no input received"))
	}
	choice := strings.TrimSpace(in.Text())
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(authEntries) {
		return authEntries[n-1].id, nil
	}
	if _, ok := authEntryName(choice); ok {
		return choice, nil
	}
	return "", errors.New(i18n.T("invalid choice, use: sitetrans auth login --provider PROVIDER"))
}

// authLoginSecret prompts for a key, keeping the stored one on empty input.
func authLoginSecret(in *bufio.Scanner, id string, save func(string) error) error {
	name, _ := authEntryName(id)
	fmt.Fprintf(os.Stderr, "\n%s\n", blue(name+" "+i18n.T("setup")))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	for _, e := range authEntries {
		if e.id == id && e.url != "" {
			fmt.Fprintf(os.Stderr, "  %s %s\n\n", i18n.T("Get your API key from:"), green(e.url))
		}
	}

	var existing string
	if info := settings.Get(id); info != nil {
		existing = info.Key
	}
	if existing != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n", i18n.T("Current key:"), yellow(settings.MaskKey(existing)))
		fmt.Fprint(os.Stderr, "  "+i18n.T("Enter new key to replace, or press Enter to keep: "))
	} else {
		fmt.Fprint(os.Stderr, "  "+i18n.T("Enter key: "))
	}

	if !in.Scan() {
		return errors.New(i18n.T("no input received"))
	}
	key := strings.TrimSpace(in.Text())
	if key == "" {
		if existing != "" {
			logInfo(i18n.T("Keeping existing key"))
			return nil
		}
		return errors.New(i18n.T("no key provided"))
	}

	if err := save(key); err != nil {
		return fmt.Errorf("saving %s credentials: %w", id, err)
	}
	logSuccess(i18n.T("%s credentials saved to %s"), name, settings.FilePath())
	return nil
}

func authLoginCustomOpenAI(in *bufio.Scanner) error {
	fmt.Fprintf(os.Stderr, "\n%s\n", blue(i18n.T("Custom OpenAI-Compatible Endpoint")))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	existing := settings.Get(translate.ProviderCustomOpenAI)
	if existing != nil && existing.BaseURL != "" {
		fmt.Fprintf(os.Stderr, "  Current endpoint: %s\n", yellow(existing.BaseURL))
		fmt.Fprint(os.Stderr, "  Enter new endpoint URL, or press Enter to keep: ")
	} else {
		fmt.Fprint(os.Stderr, "  Enter endpoint URL (e.g., https://api.example.com/v1): ")
	}
	if !in.Scan() {
		return errors.New(i18n.T("no input received"))
	}
	baseURL := strings.TrimSpace(in.Text())
	if baseURL == "" && existing != nil {
		baseURL = existing.BaseURL
	}
	if baseURL == "" {
		return errors.New(i18n.T("endpoint URL is required"))
	}

	if existing != nil && existing.Key != "" {
		fmt.Fprintf(os.Stderr, "  Current key: %s\n", yellow(settings.MaskKey(existing.Key)))
		fmt.Fprint(os.Stderr, "  Enter new API key, or press Enter to keep: ")
	} else {
		fmt.Fprint(os.Stderr, "  Enter API key (or press Enter if not required): ")
	}
	if !in.Scan() {
		return errors.New(i18n.T("no input received"))
	}
	apiKey := strings.TrimSpace(in.Text())
	if apiKey == "" && existing != nil {
		apiKey = existing.Key
	}

	if err := settings.SetAPIKeyWithBaseURL(translate.ProviderCustomOpenAI, apiKey, baseURL); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess(i18n.T("Custom OpenAI endpoint saved"))
	fmt.Fprintf(os.Stderr, "\n  You can now use: sitetrans translate --provider custom-openai --model MODEL_NAME\n\n")
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, ALL stored credentials are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess(i18n.T("All stored credentials removed"))
				return nil
			}
			if _, ok := authEntryName(provider); !ok {
				return fmt.Errorf("unknown provider '%s', run 'sitetrans auth list' to see providers", provider)
			}
			if err := settings.Remove(provider); err != nil {
				return fmt.Errorf("removing %s credentials: %w", provider, err)
			}
			logSuccess(i18n.T("%s credentials removed"), provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthEntries)
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "\n%s\n", blue(i18n.T("Stored Credentials")))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

			for _, e := range authEntries {
				entry := settings.Get(e.id)
				switch {
				case entry != nil && entry.Key != "":
					status := fmt.Sprintf("%s (key: %s)", green("configured"), settings.MaskKey(entry.Key))
					if entry.BaseURL != "" {
						status += fmt.Sprintf("\n  %14s endpoint: %s", "", entry.BaseURL)
					}
					fmt.Fprintf(os.Stderr, "  %-14s %s\n", e.id, status)
				case entry != nil && entry.BaseURL != "":
					fmt.Fprintf(os.Stderr, "  %-14s %s (no key)\n  %14s endpoint: %s\n", e.id, green("configured"), "", entry.BaseURL)
				default:
					fmt.Fprintf(os.Stderr, "  %-14s %s\n", e.id, red("not configured"))
				}
			}

			fmt.Fprintf(os.Stderr, "\n  %s\n", yellow(i18n.T("Environment Variables")))
			for _, name := range []string{settings.APIKeyEnv, settings.EndpointTokenEnv, "OPENAI_API_KEY", "GROQ_API_KEY", "OPENROUTER_API_KEY"} {
				if v := os.Getenv(name); v != "" {
					fmt.Fprintf(os.Stderr, "  %-26s %s\n", name+":", green(settings.MaskKey(v)))
				} else {
					fmt.Fprintf(os.Stderr, "  %-26s %s\n", name+":", red("not set"))
				}
			}
			fmt.Fprintf(os.Stderr, "\n  %s %s\n\n", i18n.T("File:"), settings.FilePath())
		},
	}
}
