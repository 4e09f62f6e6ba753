// Package streaming relays natural-language queries to text-generation
// providers and streams their output to browsers as Server-Sent Events.
package streaming

import (
	"context"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const componentName = "streaming"

// Request is a single query sent to a provider.
type Request struct {
	Query     string
	Model     string
	System    string
	MaxTokens int
}

// TokenFunc receives each token as it arrives. Returning an error stops the stream.
type TokenFunc func(token string) error

// Provider is a text-generation backend. Every provider can return a
// complete answer; those reporting Streaming() also implement Streamer.
type Provider interface {
	Name() string
	DefaultModel() string
	Streaming() bool
	Complete(ctx context.Context, req Request) (string, error)
}

// Streamer is implemented by providers that deliver tokens incrementally.
type Streamer interface {
	Stream(ctx context.Context, req Request, onToken TokenFunc) error
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

// NewRegistry creates a registry. fallback names the provider used when a
// request does not select one.
func NewRegistry(fallback string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers)), fallback: fallback}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get resolves a provider by name; an empty name selects the default.
func (r *Registry) Get(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.Newf("provider %q is not configured", name).
			Component(componentName).
			Category(errors.CategoryValidation).
			Context("provider", name).
			Context("available", r.Names()).
			Build()
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	return slices.Contains(r.Names(), strings.ToLower(name))
}

// NewRegistryFromSettings builds providers for every credential present in
// settings. The canned provider is always available.
func NewRegistryFromSettings(ctx context.Context, settings conf.LLMSettings, log logger.Logger) *Registry {
	log = log.Module(componentName)
	httpClient := &http.Client{}

	r := NewRegistry(settings.DefaultProvider, NewCannedProvider())
	if s := settings.OpenAI; s.APIKey != "" {
		r.Register(NewOpenAIProvider(s, nil))
	}
	if s := settings.Anthropic; s.APIKey != "" {
		r.Register(NewAnthropicProvider(s, httpClient, log))
	}
	if s := settings.Gemini; s.APIKey != "" {
		r.Register(NewGeminiProvider(s, &http.Client{Timeout: 2 * time.Minute}))
	}
	if settings.Bedrock.Enabled {
		p, err := NewBedrockProvider(ctx, settings.Bedrock, log)
		if err != nil {
			log.Warn("bedrock provider disabled", logger.Error(err))
		} else {
			r.Register(p)
		}
	}
	log.Info("llm providers configured",
		logger.Any("providers", r.Names()),
		logger.String("default", settings.DefaultProvider))
	return r
}

func upstreamError(provider string, err error) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryNetwork).
		Context("provider", provider).
		Build()
}

func modelOr(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
