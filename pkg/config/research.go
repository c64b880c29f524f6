package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrUnsupportedModel  = errors.New("unsupported model provider")
)

// SearchProvider names a search backend.
type SearchProvider string

const (
	ProviderFirecrawl SearchProvider = "firecrawl"
	ProviderTavily    SearchProvider = "tavily"
	ProviderArxiv     SearchProvider = "arxiv"
)

// Variant selects the report pipeline.
type Variant string

const (
	// VariantFlat researches the topic as a whole and writes one narrative.
	VariantFlat Variant = "flat"
	// VariantSections plans sections and researches and grades each one.
	VariantSections Variant = "sections"
)

// Credential names accepted by Configuration.Credential and Overrides.
const (
	CredentialTavily    = "tavily"
	CredentialFirecrawl = "firecrawl"
	CredentialGoogle    = "google"
	CredentialOpenAI    = "openai"
	CredentialAnthropic = "anthropic"
	CredentialMistral   = "mistral"
)

var credentialEnv = map[string]string{
	CredentialTavily:    "TAVILY_API_KEY",
	CredentialFirecrawl: "FIRECRAWL_API_KEY",
	CredentialGoogle:    "GOOGLE_API_KEY",
	CredentialOpenAI:    "OPENAI_API_KEY",
	CredentialAnthropic: "ANTHROPIC_API_KEY",
	CredentialMistral:   "MISTRAL_API_KEY",
}

const (
	DefaultSearchProvider = ProviderTavily
	DefaultModel          = "google/gemini-3-flash-preview"
	DefaultDepth          = 2
	DefaultBreadth        = 3
	DefaultQueryCount     = 3
	DefaultConcurrency    = 2
	MaxConcurrency        = 3
	DefaultVariant        = VariantFlat
	DefaultTopK           = 3
	DefaultContentLimit   = 10000
	DefaultMaxRetries     = 3
	DefaultInterCallDelay = 500 * time.Millisecond
	DefaultRetryBaseDelay = 2 * time.Second
)

// Overrides are the per-request settings. Zero values mean "not set".
type Overrides struct {
	SearchProvider string            `json:"searchProvider,omitempty"`
	Model          string            `json:"model,omitempty"`
	Depth          int               `json:"depth,omitempty"`
	Breadth        int               `json:"breadth,omitempty"`
	QueryCount     int               `json:"queryCount,omitempty"`
	Concurrency    int               `json:"concurrency,omitempty"`
	Variant        string            `json:"variant,omitempty"`
	Credentials    map[string]string `json:"credentials,omitempty"`
}

// Configuration is the resolved, immutable settings of one research run.
type Configuration struct {
	SearchProvider SearchProvider
	Model          string
	Depth          int
	Breadth        int
	QueryCount     int
	Concurrency    int
	Variant        Variant
	TopK           int
	ContentLimit   int
	InterCallDelay time.Duration
	RetryBaseDelay time.Duration
	MaxRetries     int

	credentials map[string]string
}

// Resolve merges request overrides, environment values and defaults, in that
// order of precedence. Unknown enum values and non-positive numbers fall back
// to the default instead of failing.
func Resolve(req Overrides, env Lookup) Configuration {
	if env == nil {
		env = os.Getenv
	}

	cfg := Configuration{
		SearchProvider: parseProvider(firstNonEmpty(req.SearchProvider, env("RESEARCH_SEARCH_PROVIDER"))),
		Model:          firstNonEmpty(strings.TrimSpace(req.Model), getEnv(env, "RESEARCH_MODEL", DefaultModel)),
		Depth:          positive(req.Depth, getEnvAsInt(env, "RESEARCH_DEPTH", DefaultDepth), DefaultDepth),
		Breadth:        positive(req.Breadth, getEnvAsInt(env, "RESEARCH_BREADTH", DefaultBreadth), DefaultBreadth),
		QueryCount:     positive(req.QueryCount, getEnvAsInt(env, "RESEARCH_QUERY_COUNT", DefaultQueryCount), DefaultQueryCount),
		Concurrency:    positive(req.Concurrency, getEnvAsInt(env, "RESEARCH_CONCURRENCY", DefaultConcurrency), DefaultConcurrency),
		Variant:        parseVariant(firstNonEmpty(req.Variant, env("RESEARCH_VARIANT"))),
		TopK:           DefaultTopK,
		ContentLimit:   DefaultContentLimit,
		InterCallDelay: getEnvAsDuration(env, "RESEARCH_INTER_CALL_DELAY", DefaultInterCallDelay),
		RetryBaseDelay: getEnvAsDuration(env, "RESEARCH_RETRY_BASE_DELAY", DefaultRetryBaseDelay),
		MaxRetries:     DefaultMaxRetries,
		credentials:    make(map[string]string, len(credentialEnv)),
	}
	cfg.Concurrency = min(cfg.Concurrency, MaxConcurrency)

	for name, key := range credentialEnv {
		if v := strings.TrimSpace(req.Credentials[name]); v != "" {
			cfg.credentials[name] = v
		} else if v := env(key); v != "" {
			cfg.credentials[name] = v
		}
	}
	return cfg
}

// Credential returns the secret registered under name, or "".
func (c Configuration) Credential(name string) string {
	return c.credentials[name]
}

// WithCredentials returns a copy of c with the given credentials replaced.
func (c Configuration) WithCredentials(creds map[string]string) Configuration {
	out := c
	out.credentials = maps.Clone(c.credentials)
	if out.credentials == nil {
		out.credentials = make(map[string]string, len(creds))
	}
	maps.Copy(out.credentials, creds)
	return out
}

// ModelProvider splits the model id into provider and model name. A bare
// model name is served by Google.
func (c Configuration) ModelProvider() (provider, name string) {
	provider, name, found := strings.Cut(c.Model, "/")
	if !found {
		return CredentialGoogle, c.Model
	}
	return strings.ToLower(provider), name
}

// Validate checks that the configured backends can be reached with the
// credentials at hand. It performs no network calls.
func (c Configuration) Validate() error {
	if err := c.ValidateSearch(); err != nil {
		return err
	}
	return c.ValidateModel()
}

// ValidateSearch checks the credential the search provider needs.
func (c Configuration) ValidateSearch() error {
	var name string
	switch c.SearchProvider {
	case ProviderTavily:
		name = CredentialTavily
	case ProviderFirecrawl:
		name = CredentialFirecrawl
	default:
		return nil
	}
	if c.Credential(name) == "" {
		return fmt.Errorf("search provider %s: %w (%s)", c.SearchProvider, ErrMissingCredential, credentialEnv[name])
	}
	return nil
}

// ValidateModel checks that the model provider is supported and that its
// credential is set.
func (c Configuration) ValidateModel() error {
	provider, name := c.ModelProvider()
	if name == "" {
		return fmt.Errorf("model %q: %w", c.Model, ErrUnsupportedModel)
	}
	switch provider {
	case CredentialGoogle, CredentialOpenAI, CredentialAnthropic:
		if c.Credential(provider) == "" {
			return fmt.Errorf("model %s: %w (%s)", c.Model, ErrMissingCredential, credentialEnv[provider])
		}
	default:
		return fmt.Errorf("model %q: %w", c.Model, ErrUnsupportedModel)
	}
	return nil
}

func parseProvider(s string) SearchProvider {
	switch p := SearchProvider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderFirecrawl, ProviderTavily, ProviderArxiv:
		return p
	}
	return DefaultSearchProvider
}

func parseVariant(s string) Variant {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantFlat, VariantSections:
		return v
	}
	return DefaultVariant
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// positive returns the first strictly positive value, else def.
func positive(req, env, def int) int {
	if req > 0 {
		return req
	}
	if env > 0 {
		return env
	}
	return def
}
