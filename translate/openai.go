package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderOpenAI       = "openai"
	ProviderGroq         = "groq"
	ProviderOpenRouter   = "openrouter"
	ProviderOllama       = "ollama"
	ProviderCustomOpenAI = "custom-openai"
)

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for an OpenAI-compatible chat endpoint.
type Provider struct {
	// ID is the provider identifier (openai, groq, ollama, etc.).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL, including the version segment.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderOpenAI: {
			ID:      ProviderOpenAI,
			Name:    "OpenAI",
			BaseURL: "https://api.openai.com/v1",
			Model:   openai.GPT4oMini,
			Timeout: 120 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Timeout: 60 * time.Second,
		},
		ProviderOpenRouter: {
			ID:      ProviderOpenRouter,
			Name:    "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: 120 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 300 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
	}
}

// ProviderIDs returns the known provider IDs in sorted order.
func ProviderIDs() []string {
	ids := make([]string, 0, 5)
	for id := range DefaultProviders() {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NeedsAPIKey reports whether the provider rejects unauthenticated requests.
func NeedsAPIKey(providerID string) bool {
	return providerID != ProviderOllama && providerID != ProviderCustomOpenAI
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// OpenAI-compatible completer
// ---------------------------------------------------------------------------

// OpenAIClient is a Completer backed by any OpenAI-compatible
// chat-completions endpoint.
type OpenAIClient struct {
	provider Provider
	client   *openai.Client
}

// NewOpenAIClient builds a client for prov. The provider must name a model
// and, unless it is a local service, carry an API key.
func NewOpenAIClient(prov Provider) (*OpenAIClient, error) {
	if prov.Model == "" {
		return nil, fmt.Errorf("provider %s: no model configured", prov.ID)
	}
	if prov.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: no base URL configured", prov.ID)
	}
	if prov.APIKey == "" && NeedsAPIKey(prov.ID) {
		return nil, fmt.Errorf("provider %s: API key required", prov.ID)
	}

	timeout := prov.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg := openai.DefaultConfig(prov.APIKey)
	cfg.BaseURL = strings.TrimRight(prov.BaseURL, "/")
	cfg.HTTPClient = makeHTTPClient(prov.Proxy, timeout)

	return &OpenAIClient{provider: prov, client: openai.NewClientWithConfig(cfg)}, nil
}

// Provider returns the provider the client talks to.
func (c *OpenAIClient) Provider() Provider {
	return c.provider
}

// Complete sends one system+user exchange and reports the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.provider.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Completion{}, describeAPIError(c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("%s: response has no choices", c.provider.Name)
	}

	choice := resp.Choices[0]
	return Completion{
		Text:         choice.Message.Content,
		FinishReason: finishReason(choice.FinishReason),
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

func finishReason(r openai.FinishReason) FinishReason {
	switch r {
	case openai.FinishReasonStop, "":
		return FinishComplete
	case openai.FinishReasonLength:
		return FinishLength
	default:
		return FinishOther
	}
}

func describeAPIError(prov Provider, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: authentication failed (HTTP %d): %s", prov.Name, apiErr.HTTPStatusCode, apiErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: rate limited (HTTP 429): %s", prov.Name, apiErr.Message)
		}
		return fmt.Errorf("%s: API error (HTTP %d): %s", prov.Name, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s: request failed (HTTP %d): %w", prov.Name, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%s: %w", prov.Name, err)
}
